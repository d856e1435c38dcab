//go:build linux

package health

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/suite"

	"github.com/srediag/shmchan/pkg/shm"
)

type HealthTestSuite struct {
	suite.Suite
	ch *shm.Channel
}

func (s *HealthTestSuite) SetupTest() {
	config := shm.DefaultConfig()
	config.Capacity = 128
	ch, err := shm.Open(context.Background(), filepath.Join(s.T().TempDir(), "health"), config)
	s.Require().Nil(err)
	s.ch = ch
}

func (s *HealthTestSuite) TearDownTest() {
	_ = s.ch.Detach()
}

func (s *HealthTestSuite) status(h http.Handler, path string) int {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec.Code
}

func (s *HealthTestSuite) TestReadyUntilClosed() {
	h := NewHandler(s.ch, Options{})
	s.Require().Equal(http.StatusOK, s.status(h, "/live"))
	s.Require().Equal(http.StatusOK, s.status(h, "/ready"))

	s.Require().Nil(s.ch.Close())
	s.Require().Equal(http.StatusOK, s.status(h, "/live"))
	s.Require().Equal(http.StatusServiceUnavailable, s.status(h, "/ready"))
	s.Require().ErrorIs(OpenCheck(s.ch)(), ErrChannelClosed)
}

func (s *HealthTestSuite) TestDetachFailsLiveness() {
	h := NewHandler(s.ch, Options{})
	s.Require().Nil(s.ch.Detach())
	s.Require().Equal(http.StatusServiceUnavailable, s.status(h, "/live"))
	s.Require().ErrorIs(MappedCheck(s.ch)(), shm.ErrDetached)
}

func (s *HealthTestSuite) TestRemovedBackingFile() {
	s.Require().Nil(BackingFileCheck(s.ch)())
	s.Require().Nil(shm.Remove(s.ch.Path()))
	s.Require().ErrorIs(BackingFileCheck(s.ch)(), ErrBackingFileMissing)
}

func (s *HealthTestSuite) TestMetricsHandler() {
	reg := prometheus.NewRegistry()
	h := NewHandler(s.ch, Options{Registerer: reg, Namespace: "shmchan"})
	s.Require().Equal(http.StatusOK, s.status(h, "/ready"))

	mfs, err := reg.Gather()
	s.Require().Nil(err)
	names := make([]string, 0, len(mfs))
	for _, mf := range mfs {
		names = append(names, mf.GetName())
	}
	s.Require().Contains(names, "shmchan_healthcheck_status")
}

func TestHealthTestSuite(t *testing.T) {
	suite.Run(t, new(HealthTestSuite))
}
