package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"fieldmission/internal/devapi"
	"fieldmission/internal/kv"
	"fieldmission/internal/session"
	"fieldmission/pkg/domain"
)

type fixture struct {
	api      *devapi.Server
	srv      *httptest.Server
	sessions *session.Store
	client   *Client
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	api := devapi.New(devapi.WithBcryptCost(bcrypt.MinCost))
	require.NoError(t, api.Seed())
	srv := httptest.NewServer(api.Handler())
	t.Cleanup(srv.Close)
	sessions := session.NewStore(kv.NewMemory(), nil)
	return &fixture{api: api, srv: srv, sessions: sessions, client: New(srv.URL, sessions, opts...)}
}

func (f *fixture) login(t *testing.T) domain.Session {
	t.Helper()
	sess, err := f.client.Login(context.Background(), devapi.DemoLogin, devapi.DemoPassword)
	require.NoError(t, err)
	return sess
}

func TestLoginStoresSession(t *testing.T) {
	f := newFixture(t)
	sess := f.login(t)
	require.Equal(t, "user-demo", sess.User.ID)
	require.Equal(t, domain.CompanyRef(devapi.DemoCompany), sess.User.CompanyOwner)

	stored, ok := f.sessions.Load(context.Background())
	require.True(t, ok)
	require.Equal(t, sess, stored)
}

func TestLoginRejected(t *testing.T) {
	f := newFixture(t)
	_, err := f.client.Login(context.Background(), devapi.DemoLogin, "nope")
	require.ErrorIs(t, err, ErrInvalidCredentials)
	var ne *domain.NetworkError
	require.ErrorAs(t, err, &ne)
	require.Equal(t, http.StatusUnauthorized, ne.Status)
	_, ok := f.sessions.Load(context.Background())
	require.False(t, ok)
}

func TestCallsRequireSession(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.client.QueryAssets(ctx, "")
	require.ErrorIs(t, err, domain.ErrNotAuthenticated)
	require.ErrorIs(t, f.client.SaveFormData(ctx, domain.Submission{}), domain.ErrNotAuthenticated)
	require.ErrorIs(t, f.client.Logout(ctx), domain.ErrNotAuthenticated)
	require.Zero(t, f.api.Hits("/asset/query"))
}

func TestQueryAssets(t *testing.T) {
	f := newFixture(t)
	f.login(t)
	ctx := context.Background()

	all, err := f.client.QueryAssets(ctx, "")
	require.NoError(t, err)
	require.Len(t, all, 4)
	require.Equal(t, "asset-4", all[0].ID)

	found, err := f.client.QueryAssets(ctx, "  ef-456 ")
	require.NoError(t, err)
	require.Len(t, found, 1)
	require.Equal(t, domain.Asset{ID: "asset-2", Name: "Fourgon Renault Master", Type: "Van", LicensePlate: "EF-456-GH"}, found[0])

	none, err := f.client.QueryAssets(ctx, "(")
	require.NoError(t, err)
	require.Empty(t, none)
}

func TestQueryDriversMapsNames(t *testing.T) {
	f := newFixture(t)
	f.login(t)
	drivers, err := f.client.QueryDrivers(context.Background(), "DUP")
	require.NoError(t, err)
	require.Len(t, drivers, 1)
	require.Equal(t, "Jean Dupont", drivers[0].Name)
	require.Equal(t, "Jean", drivers[0].FirstName)
	require.Equal(t, "driver-1", drivers[0].ID)
}

func TestQueryContainersMapsGeodata(t *testing.T) {
	f := newFixture(t)
	f.login(t)
	f.api.AddDocuments(devapi.CollectionGeodata, devapi.Document{
		"_id": "bac-x", "_company_owner": devapi.DemoCompany, "creation_dt": "2026-01-01",
		"geometry": map[string]any{"type": "Point"}, "properties": map[string]any{"capacity": "120"},
	})
	containers, err := f.client.QueryContainers(context.Background(), "")
	require.NoError(t, err)
	require.Len(t, containers, 4)
	require.Equal(t, domain.Container{ID: "bac-x", Name: "Unnamed", Capacity: 120, Type: "Point"}, containers[0])

	gare, err := f.client.QueryContainers(context.Background(), "gare")
	require.NoError(t, err)
	require.Len(t, gare, 1)
	require.Equal(t, "Parvis nord", gare[0].Location)
	require.Equal(t, 340.0, gare[0].Capacity)
}

func TestSearchBody(t *testing.T) {
	var body map[string]any
	var rawQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rawQuery = r.URL.RawQuery
		raw, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(raw, &body)
		_, _ = w.Write([]byte(`{"result":null}`))
	}))
	defer srv.Close()
	sessions := session.NewStore(kv.NewMemory(), nil)
	require.NoError(t, sessions.Save(context.Background(), domain.Session{User: domain.User{CompanyOwner: "c1"}, Token: "t"}))
	client := New(srv.URL, sessions)

	got, err := client.QueryAssets(context.Background(), "")
	require.NoError(t, err)
	require.Empty(t, got)
	require.Equal(t, "limit=10&page=1", rawQuery)
	query := body["query"].(map[string]any)
	require.Equal(t, "c1", query["_company_owner"])
	require.NotContains(t, query, "$or")
	require.Equal(t, map[string]any{"from_dt": float64(-1)}, body["options"].(map[string]any)["sortBy"])

	_, err = client.QueryDrivers(context.Background(), "a.b")
	require.NoError(t, err)
	or := body["query"].(map[string]any)["$or"].([]any)
	require.Len(t, or, 2)
	require.Equal(t, map[string]any{"first_name": map[string]any{"$regex": `a\.b`, "$options": "i"}}, or[0])
}

func TestSaveFormDataStripsTitle(t *testing.T) {
	f := newFixture(t)
	f.login(t)
	sub := domain.Submission{Title: "Local title", FormID: "form-mission", Data: domain.SubmissionData{Description: "overflow"}}
	require.NoError(t, f.client.SaveFormData(context.Background(), sub))

	stored := f.api.Submissions()
	require.Len(t, stored, 1)
	var decoded map[string]any
	require.NoError(t, json.Unmarshal(stored[0], &decoded))
	require.NotContains(t, decoded, "title")
	require.Equal(t, "form-mission", decoded["_form_id"])
}

func TestSaveFormDataFailure(t *testing.T) {
	f := newFixture(t)
	f.login(t)
	f.api.FailNext("/form_data/", http.StatusInternalServerError)
	err := f.client.SaveFormData(context.Background(), domain.Submission{FormID: "f"})
	var ne *domain.NetworkError
	require.ErrorAs(t, err, &ne)
	require.Equal(t, http.StatusInternalServerError, ne.Status)
	require.Equal(t, "POST /form_data/", ne.Op)
}

func TestTransportFailureIsNetworkError(t *testing.T) {
	f := newFixture(t)
	f.login(t)
	f.srv.Close()
	err := f.client.SaveFormData(context.Background(), domain.Submission{})
	var ne *domain.NetworkError
	require.ErrorAs(t, err, &ne)
	require.Zero(t, ne.Status)
}

func TestQueryForms(t *testing.T) {
	f := newFixture(t)
	f.login(t)
	forms, err := f.client.QueryForms(context.Background(), 2, 1)
	require.NoError(t, err)
	require.Equal(t, []domain.FormTemplate{
		{ID: "form-mission", Title: "Mission de livraison", Description: "Formulaire de mission de livraison."},
		{ID: "form-maintenance", Title: "Maintenance véhicule", Description: "Rapport de maintenance pour les véhicules de la flotte."},
	}, forms)
}

func TestLogoutClearsSessionEvenOnFailure(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.login(t)
	require.NoError(t, f.client.Logout(ctx))
	_, ok := f.sessions.Load(ctx)
	require.False(t, ok)

	f.login(t)
	f.api.FailNext("/logout", http.StatusBadGateway)
	require.Error(t, f.client.Logout(ctx))
	_, ok = f.sessions.Load(ctx)
	require.False(t, ok)
}

func TestSearchersAndRateLimit(t *testing.T) {
	f := newFixture(t, WithRateLimit(1000), WithPageSize(2))
	f.login(t)
	s := f.client.Searchers()
	assets, err := s.Assets(context.Background(), "")
	require.NoError(t, err)
	require.Len(t, assets, 2)
	drivers, err := s.Drivers(context.Background(), "marie")
	require.NoError(t, err)
	require.Len(t, drivers, 1)
	containers, err := s.Containers(context.Background(), "")
	require.NoError(t, err)
	require.Len(t, containers, 2)
}

func TestRateLimitHonoursContext(t *testing.T) {
	f := newFixture(t, WithRateLimit(0.001))
	f.login(t)
	_, err := f.client.QueryAssets(context.Background(), "")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = f.client.QueryAssets(ctx, "")
	require.Error(t, err)
	require.False(t, errors.Is(err, domain.ErrNotAuthenticated))
}
