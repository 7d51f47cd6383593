// Copyright 2021 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package door

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"periph.io/x/opendoor/api"
)

type mockDevice struct {
	mock.Mock
}

func (m *mockDevice) Connect(ctx context.Context, login bool) error {
	return m.Called(ctx, login).Error(0)
}

func (m *mockDevice) ListEntitiesServices(ctx context.Context) ([]api.EntityInfo, []api.ServiceInfo, error) {
	args := m.Called(ctx)
	return args.Get(0).([]api.EntityInfo), args.Get(1).([]api.ServiceInfo), args.Error(2)
}

func (m *mockDevice) ButtonCommand(ctx context.Context, key uint32) error {
	return m.Called(ctx, key).Error(0)
}

func (m *mockDevice) Ping(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func (m *mockDevice) Close() error {
	return m.Called().Error(0)
}

var entities = []api.EntityInfo{
	{Kind: api.Button, ObjectID: "timbre", Key: 1, Name: "Timbre"},
	{Kind: api.Switch, ObjectID: "luz", Key: 2, Name: "Luz"},
	{Kind: api.Button, ObjectID: "abrir", Key: 3, Name: "ABRIR"},
	{Kind: api.Button, ObjectID: "abrir_2", Key: 4, Name: "abrir"},
}

func TestOpen(t *testing.T) {
	dev := &mockDevice{}
	dev.On("Connect", mock.Anything, true).Return(nil).Once()
	dev.On("ListEntitiesServices", mock.Anything).Return(entities, []api.ServiceInfo(nil), nil).Once()
	dev.On("ButtonCommand", mock.Anything, uint32(3)).Return(nil).Once()
	dev.On("Ping", mock.Anything).Return(nil).Once()
	dev.On("Close").Return(nil).Once()

	out := bytes.Buffer{}
	res, err := Open(context.Background(), dev, Options{Settle: time.Millisecond, Out: &out})
	require.NoError(t, err)
	assert.True(t, res.Found)
	assert.Equal(t, entities[2], res.Entity)
	assert.Equal(t, "Button found: button \"ABRIR\" (object_id=abrir, key=3)\n", out.String())
	dev.AssertExpectations(t)
	// Only the first match is pressed.
	dev.AssertNumberOfCalls(t, "ButtonCommand", 1)
	dev.AssertNotCalled(t, "ButtonCommand", mock.Anything, uint32(4))
}

func TestOpen_NotFound(t *testing.T) {
	dev := &mockDevice{}
	dev.On("Connect", mock.Anything, true).Return(nil).Once()
	dev.On("ListEntitiesServices", mock.Anything).Return(entities[:2], []api.ServiceInfo(nil), nil).Once()
	dev.On("Close").Return(nil).Once()

	out := bytes.Buffer{}
	res, err := Open(context.Background(), dev, Options{Out: &out})
	require.NoError(t, err)
	assert.False(t, res.Found)
	assert.Equal(t, "Button \"abrir\" not found\n", out.String())
	dev.AssertExpectations(t)
	dev.AssertNotCalled(t, "ButtonCommand", mock.Anything, mock.Anything)
	dev.AssertNumberOfCalls(t, "Close", 1)
}

func TestOpen_Target(t *testing.T) {
	dev := &mockDevice{}
	dev.On("Connect", mock.Anything, true).Return(nil).Once()
	dev.On("ListEntitiesServices", mock.Anything).Return(entities, []api.ServiceInfo(nil), nil).Once()
	dev.On("ButtonCommand", mock.Anything, uint32(1)).Return(nil).Once()
	dev.On("Ping", mock.Anything).Return(nil).Once()
	dev.On("Close").Return(nil).Once()

	res, err := Open(context.Background(), dev, Options{Target: "timbre", Settle: -1})
	require.NoError(t, err)
	assert.Equal(t, uint32(1), res.Entity.Key)
	dev.AssertExpectations(t)
}

func TestOpen_ConnectErr(t *testing.T) {
	errRefused := errors.New("connection refused")
	dev := &mockDevice{}
	dev.On("Connect", mock.Anything, true).Return(errRefused).Once()
	dev.On("Close").Return(nil).Once()

	_, err := Open(context.Background(), dev, Options{})
	assert.ErrorIs(t, err, errRefused)
	dev.AssertExpectations(t)
	// Nothing is sent before the connection succeeded.
	dev.AssertNotCalled(t, "ListEntitiesServices", mock.Anything)
	dev.AssertNotCalled(t, "ButtonCommand", mock.Anything, mock.Anything)
}

func TestOpen_ListErr(t *testing.T) {
	errTimeout := errors.New("timeout")
	dev := &mockDevice{}
	dev.On("Connect", mock.Anything, true).Return(nil).Once()
	dev.On("ListEntitiesServices", mock.Anything).Return([]api.EntityInfo(nil), []api.ServiceInfo(nil), errTimeout).Once()
	dev.On("Close").Return(nil).Once()

	_, err := Open(context.Background(), dev, Options{})
	assert.ErrorIs(t, err, errTimeout)
	dev.AssertExpectations(t)
	dev.AssertNotCalled(t, "ButtonCommand", mock.Anything, mock.Anything)
}

func TestOpen_PressErr(t *testing.T) {
	errWrite := errors.New("broken pipe")
	dev := &mockDevice{}
	dev.On("Connect", mock.Anything, true).Return(nil).Once()
	dev.On("ListEntitiesServices", mock.Anything).Return(entities, []api.ServiceInfo(nil), nil).Once()
	dev.On("ButtonCommand", mock.Anything, uint32(3)).Return(errWrite).Once()
	dev.On("Close").Return(nil).Once()

	res, err := Open(context.Background(), dev, Options{})
	assert.ErrorIs(t, err, errWrite)
	assert.False(t, res.Found)
	dev.AssertExpectations(t)
	dev.AssertNotCalled(t, "Ping", mock.Anything)
}

func TestOpen_CloseErr(t *testing.T) {
	errClose := errors.New("close failed")
	dev := &mockDevice{}
	dev.On("Connect", mock.Anything, true).Return(nil).Once()
	dev.On("ListEntitiesServices", mock.Anything).Return(entities[:1], []api.ServiceInfo(nil), nil).Once()
	dev.On("Close").Return(errClose).Once()

	_, err := Open(context.Background(), dev, Options{})
	assert.ErrorIs(t, err, errClose)
	dev.AssertExpectations(t)
}

func TestOpen_Cancel(t *testing.T) {
	dev := &mockDevice{}
	dev.On("Connect", mock.Anything, true).Return(nil).Once()
	dev.On("ListEntitiesServices", mock.Anything).Return(entities, []api.ServiceInfo(nil), nil).Once()
	dev.On("ButtonCommand", mock.Anything, uint32(3)).Return(nil).Once()
	dev.On("Ping", mock.Anything).Return(nil).Once()
	dev.On("Close").Return(nil).Once()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res, err := Open(ctx, dev, Options{Settle: time.Hour})
	assert.ErrorIs(t, err, context.Canceled)
	// The press went through.
	assert.True(t, res.Found)
	dev.AssertExpectations(t)
}

func TestFind(t *testing.T) {
	assert.Nil(t, Find(nil, "abrir"))
	assert.Equal(t, uint32(3), Find(entities, "Abrir").Key)
	assert.Equal(t, uint32(2), Find(entities, "LUZ").Key)
	// Exact match only.
	assert.Nil(t, Find(entities, "abri"))
}
