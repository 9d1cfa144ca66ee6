package server_test

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/inferloop/reviewqa/internal/anomaly"
	"github.com/inferloop/reviewqa/internal/app"
	"github.com/inferloop/reviewqa/internal/server"
	"github.com/inferloop/reviewqa/tests/helpers"
)

const cleanPipeline = `
name: clean
stages:
  - id: quality
    phase: dq
    source:
      asset_id: dataset-raw-landing-reviews
    destination:
      name: reviews
    tasks:
      - type: anomaly
        dimension: text
        column: content
        mode: detect
        detect_strategy: short_review
      - type: anomaly
        dimension: text
        column: content
        mode: repair
        repair_strategy: short_review
`

type appServer struct {
	env *helpers.TestEnvironment
	app *app.App
	srv *server.Server
}

func newAppServer(t *testing.T) *appServer {
	t.Helper()
	env := helpers.NewTestEnvironment(t)
	a := env.NewApp(env.WriteConfig(""))
	env.SeedReviews(a.Repository, helpers.ReviewFrame("great app love it", "bad", "works fine for me"))

	srv, err := server.NewServer(&a.Config.Server, server.Deps{
		Registry:   a.Registry,
		Repository: a.Repository,
		Profiles:   a.Profiles,
		Env:        a.Env(),
		Health:     a.Health,
		Metrics:    a.Metrics,
	}, env.Logger)
	require.NoError(t, err)
	return &appServer{env: env, app: a, srv: srv}
}

func (s *appServer) do(method, target, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	rec := httptest.NewRecorder()
	s.srv.Handler().ServeHTTP(rec, req)
	return rec
}

func TestApplicationServerHealthAndAssets(t *testing.T) {
	s := newAppServer(t)

	rec := s.do(http.MethodGet, "/health", "")
	helpers.AssertHTTPResponse(t, rec.Code, rec.Body.Bytes(), http.StatusOK, "healthy")

	rec = s.do(http.MethodGet, "/api/v1/assets/"+helpers.RawReviewsAsset, "")
	helpers.AssertHTTPResponse(t, rec.Code, rec.Body.Bytes(), http.StatusOK)
	helpers.AssertJSONResponse(t, rec.Body.Bytes(), map[string]interface{}{
		"id":     helpers.RawReviewsAsset,
		"exists": true,
		"rows":   float64(3),
	})
}

func TestApplicationServerRunsPipeline(t *testing.T) {
	s := newAppServer(t)

	rec := s.do(http.MethodPost, "/api/v1/pipelines/run", cleanPipeline)
	helpers.AssertHTTPResponse(t, rec.Code, rec.Body.Bytes(), http.StatusOK, "COMPLETE")
	helpers.AssertJSONResponse(t, rec.Body.Bytes(), map[string]interface{}{"pipeline": "clean"})

	source, err := s.app.Repository.Get(s.env.Context, helpers.RawReviewsAsset)
	require.NoError(t, err)
	out, err := s.app.Repository.Get(s.env.Context, "dataset-dq-quality-reviews")
	require.NoError(t, err)

	helpers.AssertRowsRemoved(t, source.Frame, out.Frame, 1)
	helpers.AssertColumn(t, out.Frame, "content", []interface{}{"great app love it", "works fine for me"})
	helpers.AssertFlags(t, out.Frame, anomaly.FlagColumn("quality", anomaly.DefaultFlagColumn("content", "short_review")), []bool{false, false})
}
