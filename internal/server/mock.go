package server

import (
	"github.com/npezzotti/go-chatserver/internal/types"
	"github.com/stretchr/testify/mock"
)

type MockPersister struct {
	mock.Mock
}

func (m *MockPersister) Persist(full, condensed types.Snapshot) {
	m.Called(full, condensed)
}

func (m *MockPersister) Announce(text string) {
	m.Called(text)
}
