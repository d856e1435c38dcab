//go:build linux

package transport

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/srediag/shmchan/pkg/shm"
)

type ShmTransportTestSuite struct {
	suite.Suite
	path string
}

func (s *ShmTransportTestSuite) SetupTest() {
	s.path = filepath.Join(s.T().TempDir(), "transport")
}

func (s *ShmTransportTestSuite) config(attachOnly bool) *shm.Config {
	config := shm.DefaultConfig()
	config.Capacity = 1024
	config.AttachOnly = attachOnly
	return config
}

func (s *ShmTransportTestSuite) TestSendReceive() {
	tx := NewShmTransport(Options{Path: s.path, Config: s.config(false)})
	rx := NewShmTransport(Options{Path: s.path, Config: s.config(true)})

	s.Require().ErrorIs(tx.Send([]byte("early")), ErrNotStarted)
	s.Require().Nil(tx.Start())
	s.Require().Nil(tx.Start())
	s.Require().Nil(rx.Start())
	defer rx.Stop()

	s.Require().Nil(tx.Send([]byte("ping")))
	msg, err := rx.Receive()
	s.Require().Nil(err)
	s.Require().Equal("ping", string(msg))

	s.Require().Nil(tx.Stop())
	s.Require().Nil(tx.Stop())
	s.Require().Nil(tx.Channel())
	_, err = tx.Receive()
	s.Require().ErrorIs(err, ErrNotStarted)

	s.Require().Nil(rx.Shutdown())
	_, err = rx.Receive()
	s.Require().ErrorIs(err, shm.ErrShutdown)
}

func (s *ShmTransportTestSuite) TestAttachWait() {
	rx := NewShmTransport(Options{Path: s.path, Config: s.config(true), AttachWait: 5 * time.Second})
	done := make(chan error, 1)
	go func() { done <- rx.Start() }()

	time.Sleep(50 * time.Millisecond)
	tx := NewShmTransport(Options{Path: s.path, Config: s.config(false)})
	s.Require().Nil(tx.Start())
	defer tx.Stop()

	select {
	case err := <-done:
		s.Require().Nil(err)
	case <-time.After(5 * time.Second):
		s.FailNow("attach did not complete")
	}
	defer rx.Stop()
	s.Require().NotNil(rx.Channel())
	s.Require().False(rx.Channel().Created())
}

func (s *ShmTransportTestSuite) TestAttachOnlyWithoutWaitFails() {
	rx := NewShmTransport(Options{Path: s.path, Config: s.config(true)})
	s.Require().ErrorIs(rx.Start(), shm.ErrMapFailure)
}

func (s *ShmTransportTestSuite) TestPermanentErrorStopsRetry() {
	tx := NewShmTransport(Options{Path: s.path, Config: s.config(false)})
	s.Require().Nil(tx.Start())
	defer tx.Stop()

	config := s.config(true)
	config.Capacity = 2048
	rx := NewShmTransport(Options{Path: s.path, Config: config, AttachWait: time.Minute})
	start := time.Now()
	s.Require().ErrorIs(rx.Start(), shm.ErrCapacityMismatch)
	s.Require().Less(time.Since(start), 10*time.Second)
}

func TestShmTransportTestSuite(t *testing.T) {
	suite.Run(t, new(ShmTransportTestSuite))
}
