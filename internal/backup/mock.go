package backup

import (
	"context"

	"github.com/npezzotti/go-chatserver/internal/types"
	"github.com/stretchr/testify/mock"
)

type MockSnapshotStore struct {
	mock.Mock
}

func (m *MockSnapshotStore) Save(snap types.Snapshot) error {
	args := m.Called(snap)
	return args.Error(0)
}

func (m *MockSnapshotStore) Load() (types.Snapshot, bool, error) {
	args := m.Called()
	return args.Get(0).(types.Snapshot), args.Bool(1), args.Error(2)
}

func (m *MockSnapshotStore) Close() error {
	args := m.Called()
	return args.Error(0)
}

type MockBackupChannel struct {
	mock.Mock
}

func (m *MockBackupChannel) Push(ctx context.Context, snap types.Snapshot) error {
	args := m.Called(ctx, snap)
	return args.Error(0)
}

func (m *MockBackupChannel) Notify(ctx context.Context, text string) error {
	args := m.Called(ctx, text)
	return args.Error(0)
}

func (m *MockBackupChannel) Latest(ctx context.Context) (types.Snapshot, bool, error) {
	args := m.Called(ctx)
	return args.Get(0).(types.Snapshot), args.Bool(1), args.Error(2)
}
