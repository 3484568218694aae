package httpserver

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	datasetregistry "geneledger/contexts/data-marketplace/dataset-registry"
	"geneledger/contexts/data-marketplace/dataset-registry/adapters/settlement"
	registryhttp "geneledger/contexts/data-marketplace/dataset-registry/transport/http"
	"geneledger/internal/platform/metrics"
)

const (
	ownerID = "0x00000000000000000000000000000000000000aa"
	buyerID = "0x00000000000000000000000000000000000000cc"
)

func newTestServer() *Server {
	return New(datasetregistry.NewInMemoryModule(nil), nil, "", Options{Metrics: metrics.New().Handler()})
}

func doJSON(t *testing.T, server *Server, method, path, caller string, body string, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != "" {
		reader = bytes.NewReader([]byte(body))
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if caller != "" {
		req.Header.Set("X-User-Id", caller)
	}
	for key, value := range headers {
		req.Header.Set(key, value)
	}
	rr := httptest.NewRecorder()
	server.mux.ServeHTTP(rr, req)
	return rr
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.Unmarshal(rr.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode response: %v body=%s", err, rr.Body.String())
	}
	return out
}

func registerStandard(t *testing.T, server *Server) registryhttp.DatasetDTO {
	t.Helper()
	rr := doJSON(t, server, http.MethodPost, "/v1/datasets", ownerID,
		`{"title":"Exome cohort","content_ref":"bafy","price":"5","access_tier":"Standard","data_type":"CSV"}`, nil)
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201 register, got %d body=%s", rr.Code, rr.Body.String())
	}
	return decode[registryhttp.RegisterDatasetResponse](t, rr).Item
}

func TestRegisterRequiresCaller(t *testing.T) {
	server := newTestServer()
	rr := doJSON(t, server, http.MethodPost, "/v1/datasets", "", `{"title":"x","price":"0","access_tier":"Open"}`, nil)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d body=%s", rr.Code, rr.Body.String())
	}
}

func TestRegisterRejectsUnknownFields(t *testing.T) {
	server := newTestServer()
	rr := doJSON(t, server, http.MethodPost, "/v1/datasets", ownerID, `{"title":"x","price":"0","access_tier":"Open","owner":"0xbeef"}`, nil)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d body=%s", rr.Code, rr.Body.String())
	}
	if resp := decode[registryhttp.ErrorResponse](t, rr); resp.Code != "invalid_json" {
		t.Fatalf("expected invalid_json, got %s", resp.Code)
	}
}

func TestRegisterValidationError(t *testing.T) {
	server := newTestServer()
	rr := doJSON(t, server, http.MethodPost, "/v1/datasets", ownerID, `{"title":"x","price":"0","access_tier":"Gold"}`, nil)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d body=%s", rr.Code, rr.Body.String())
	}
	resp := decode[registryhttp.ErrorResponse](t, rr)
	if resp.Code != "validation_failed" || resp.Details["field"] != "access_tier" {
		t.Fatalf("unexpected error response %+v", resp)
	}
}

func TestPurchaseAccessAndWithdrawOverHTTP(t *testing.T) {
	server := newTestServer()
	dataset := registerStandard(t, server)
	base := "/v1/datasets/" + jsonNumber(dataset.DatasetID)

	rr := doJSON(t, server, http.MethodGet, base+"/access?principal="+buyerID, "", "", nil)
	if rr.Code != http.StatusOK || decode[registryhttp.CanAccessResponse](t, rr).Allowed {
		t.Fatalf("expected denied access before purchase, got %d body=%s", rr.Code, rr.Body.String())
	}

	rr = doJSON(t, server, http.MethodPost, base+"/purchase", buyerID, `{"amount":"3"}`, nil)
	if rr.Code != http.StatusPaymentRequired {
		t.Fatalf("expected 402 underpayment, got %d body=%s", rr.Code, rr.Body.String())
	}
	if resp := decode[registryhttp.ErrorResponse](t, rr); resp.Details["expected"] != "5" || resp.Details["got"] != "3" {
		t.Fatalf("unexpected payment details %+v", resp.Details)
	}

	rr = doJSON(t, server, http.MethodPost, base+"/purchase", buyerID, `{"amount":"5"}`, map[string]string{"Idempotency-Key": "idem-1"})
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 purchase, got %d body=%s", rr.Code, rr.Body.String())
	}
	rr = doJSON(t, server, http.MethodPost, base+"/purchase", buyerID, `{"amount":"5"}`, map[string]string{"Idempotency-Key": "idem-1"})
	if rr.Code != http.StatusOK || !decode[registryhttp.PurchaseAccessResponse](t, rr).Replayed {
		t.Fatalf("expected replayed 200, got %d body=%s", rr.Code, rr.Body.String())
	}
	rr = doJSON(t, server, http.MethodPost, base+"/purchase", buyerID, `{"amount":"5"}`, nil)
	if rr.Code != http.StatusConflict {
		t.Fatalf("expected 409 repeat purchase, got %d body=%s", rr.Code, rr.Body.String())
	}

	rr = doJSON(t, server, http.MethodGet, base+"/access", buyerID, "", nil)
	if rr.Code != http.StatusOK || !decode[registryhttp.CanAccessResponse](t, rr).Allowed {
		t.Fatalf("expected access after purchase, got %d body=%s", rr.Code, rr.Body.String())
	}

	rr = doJSON(t, server, http.MethodGet, "/v1/escrow/balance", ownerID, "", nil)
	if rr.Code != http.StatusOK || decode[registryhttp.EscrowBalanceResponse](t, rr).Balance != "5" {
		t.Fatalf("expected balance 5, got %d body=%s", rr.Code, rr.Body.String())
	}

	rr = doJSON(t, server, http.MethodPost, "/v1/escrow/withdraw", ownerID, "", nil)
	if rr.Code != http.StatusOK || decode[registryhttp.WithdrawResponse](t, rr).Amount != "5" {
		t.Fatalf("expected withdraw of 5, got %d body=%s", rr.Code, rr.Body.String())
	}
	rr = doJSON(t, server, http.MethodPost, "/v1/escrow/withdraw", ownerID, "", nil)
	if rr.Code != http.StatusConflict || decode[registryhttp.ErrorResponse](t, rr).Code != "nothing_to_withdraw" {
		t.Fatalf("expected 409 nothing_to_withdraw, got %d body=%s", rr.Code, rr.Body.String())
	}

	rr = doJSON(t, server, http.MethodGet, "/v1/withdrawals", ownerID, "", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 withdrawals, got %d body=%s", rr.Code, rr.Body.String())
	}
	if items := decode[registryhttp.ListWithdrawalsResponse](t, rr).Items; len(items) != 1 || items[0].Status != "settled" {
		t.Fatalf("unexpected withdrawals %+v", items)
	}
}

func TestSettlementFailureMapsToBadGateway(t *testing.T) {
	recorder := settlement.NewRecorder()
	recorder.Fail = errors.New("bank offline")
	module := datasetregistry.NewInMemoryModule(nil)
	module = datasetregistry.NewModule(datasetregistry.Dependencies{
		Repository:  module.Store,
		Settlement:  recorder,
		Clock:       module.Store,
		IDGenerator: module.Store,
	})
	server := New(module, nil, "", Options{})
	dataset := registerStandard(t, server)

	rr := doJSON(t, server, http.MethodPost, "/v1/datasets/"+jsonNumber(dataset.DatasetID)+"/purchase", buyerID, `{"amount":"5"}`, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 purchase, got %d body=%s", rr.Code, rr.Body.String())
	}
	rr = doJSON(t, server, http.MethodPost, "/v1/escrow/withdraw", ownerID, "", nil)
	if rr.Code != http.StatusBadGateway || decode[registryhttp.ErrorResponse](t, rr).Code != "settlement_failed" {
		t.Fatalf("expected 502 settlement_failed, got %d body=%s", rr.Code, rr.Body.String())
	}
	rr = doJSON(t, server, http.MethodGet, "/v1/escrow/balance", ownerID, "", nil)
	if decode[registryhttp.EscrowBalanceResponse](t, rr).Balance != "0" {
		t.Fatalf("balance must stay zero after failed settlement, body=%s", rr.Body.String())
	}
}

func TestOpenDatasetAccessAndPurchaseRejection(t *testing.T) {
	server := newTestServer()
	rr := doJSON(t, server, http.MethodPost, "/v1/datasets", ownerID, `{"title":"Public panel","price":"10","access_tier":"Open"}`, nil)
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d body=%s", rr.Code, rr.Body.String())
	}
	id := jsonNumber(decode[registryhttp.RegisterDatasetResponse](t, rr).Item.DatasetID)

	rr = doJSON(t, server, http.MethodGet, "/v1/datasets/"+id+"/access?principal="+buyerID, "", "", nil)
	if !decode[registryhttp.CanAccessResponse](t, rr).Allowed {
		t.Fatalf("open dataset must be accessible, body=%s", rr.Body.String())
	}
	rr = doJSON(t, server, http.MethodPost, "/v1/datasets/"+id+"/purchase", buyerID, `{"amount":"10"}`, nil)
	if rr.Code != http.StatusBadRequest || decode[registryhttp.ErrorResponse](t, rr).Code != "open_dataset_not_purchasable" {
		t.Fatalf("expected 400 open_dataset_not_purchasable, got %d body=%s", rr.Code, rr.Body.String())
	}
}

func TestGetAndListDatasets(t *testing.T) {
	server := newTestServer()
	first := registerStandard(t, server)
	registerStandard(t, server)

	rr := doJSON(t, server, http.MethodGet, "/v1/datasets/"+jsonNumber(first.DatasetID), "", "", nil)
	if rr.Code != http.StatusOK || decode[registryhttp.GetDatasetResponse](t, rr).Item.Title != "Exome cohort" {
		t.Fatalf("unexpected get response %d body=%s", rr.Code, rr.Body.String())
	}
	rr = doJSON(t, server, http.MethodGet, "/v1/datasets/999", "", "", nil)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rr.Code)
	}
	rr = doJSON(t, server, http.MethodGet, "/v1/datasets/abc", "", "", nil)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 on bad id, got %d", rr.Code)
	}

	rr = doJSON(t, server, http.MethodGet, "/v1/datasets?limit=1", "", "", nil)
	page := decode[registryhttp.ListDatasetsResponse](t, rr)
	if len(page.Items) != 1 || page.NextCursor == "" {
		t.Fatalf("expected one item and a cursor, got %+v", page)
	}
	rr = doJSON(t, server, http.MethodGet, "/v1/datasets?limit=1&cursor="+page.NextCursor, "", "", nil)
	page = decode[registryhttp.ListDatasetsResponse](t, rr)
	if len(page.Items) != 1 || page.NextCursor != "" {
		t.Fatalf("expected last page, got %+v", page)
	}
	rr = doJSON(t, server, http.MethodGet, "/v1/datasets?limit=-1", "", "", nil)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 on negative limit, got %d", rr.Code)
	}
}

func TestListDatasetsByTagAndSearch(t *testing.T) {
	server := newTestServer()
	bodies := []string{
		`{"title":"Exome cohort","content_ref":"bafy","price":"5","access_tier":"Standard","tags":["Genomics"]}`,
		`{"title":"Sleep study","description":"Wearable traces","content_ref":"bafy","price":"5","access_tier":"Standard","tags":["wearables"]}`,
	}
	for _, body := range bodies {
		if rr := doJSON(t, server, http.MethodPost, "/v1/datasets", ownerID, body, nil); rr.Code != http.StatusCreated {
			t.Fatalf("expected 201 register, got %d body=%s", rr.Code, rr.Body.String())
		}
	}

	rr := doJSON(t, server, http.MethodGet, "/v1/datasets?tag=genomics", "", "", nil)
	page := decode[registryhttp.ListDatasetsResponse](t, rr)
	if rr.Code != http.StatusOK || len(page.Items) != 1 || page.Items[0].Title != "Exome cohort" {
		t.Fatalf("unexpected tag page %d %+v", rr.Code, page)
	}
	rr = doJSON(t, server, http.MethodGet, "/v1/datasets?q=wearable", "", "", nil)
	page = decode[registryhttp.ListDatasetsResponse](t, rr)
	if len(page.Items) != 1 || page.Items[0].Title != "Sleep study" {
		t.Fatalf("unexpected search page %+v", page)
	}
	rr = doJSON(t, server, http.MethodGet, "/v1/datasets?limit=100000000", "", "", nil)
	page = decode[registryhttp.ListDatasetsResponse](t, rr)
	if rr.Code != http.StatusOK || len(page.Items) != 2 {
		t.Fatalf("huge limit must be clamped, got %d %+v", rr.Code, page)
	}
}

func TestWriteRoutesAreRateLimitedPerCaller(t *testing.T) {
	server := New(datasetregistry.NewInMemoryModule(nil), nil, "", Options{RateLimitPerSecond: 0.001, RateLimitBurst: 1})
	body := `{"title":"x","price":"0","access_tier":"Open"}`

	if rr := doJSON(t, server, http.MethodPost, "/v1/datasets", ownerID, body, nil); rr.Code != http.StatusCreated {
		t.Fatalf("expected first request to pass, got %d", rr.Code)
	}
	if rr := doJSON(t, server, http.MethodPost, "/v1/datasets", ownerID, body, nil); rr.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", rr.Code)
	}
	if rr := doJSON(t, server, http.MethodPost, "/v1/datasets", buyerID, body, nil); rr.Code != http.StatusCreated {
		t.Fatalf("other callers keep their own bucket, got %d", rr.Code)
	}
	if rr := doJSON(t, server, http.MethodGet, "/v1/datasets", ownerID, "", nil); rr.Code != http.StatusOK {
		t.Fatalf("reads are not throttled, got %d", rr.Code)
	}
}

func TestHealthAndMetricsEndpoints(t *testing.T) {
	server := newTestServer()
	if rr := doJSON(t, server, http.MethodGet, "/healthz", "", "", nil); rr.Code != http.StatusOK {
		t.Fatalf("expected healthz 200, got %d", rr.Code)
	}
	rr := doJSON(t, server, http.MethodGet, "/metrics", "", "", nil)
	if rr.Code != http.StatusOK || !bytes.Contains(rr.Body.Bytes(), []byte("go_goroutines")) {
		t.Fatalf("expected prometheus exposition, got %d", rr.Code)
	}
}

func jsonNumber(id uint64) string {
	raw, _ := json.Marshal(id)
	return string(raw)
}
