package api_test

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/punchamoorthee/handlepay/internal/api"
	"github.com/punchamoorthee/handlepay/internal/balance"
	"github.com/punchamoorthee/handlepay/internal/checkout"
	"github.com/punchamoorthee/handlepay/internal/domain"
	"github.com/punchamoorthee/handlepay/internal/identity"
	"github.com/punchamoorthee/handlepay/internal/models"
	"github.com/punchamoorthee/handlepay/internal/provider"
	"github.com/punchamoorthee/handlepay/internal/service"
	"github.com/punchamoorthee/handlepay/internal/settlement"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

const webhookSecret = "whsec_test"

type testServer struct {
	srv      *httptest.Server
	store    *memStore
	auth     *api.Authenticator
	checkout *checkout.Checkout
	alice    *domain.Account
	bob      *domain.Account
}

// newTestServer wires the real services against an in-memory store and a
// provider stub answering with providerStatus.
func newTestServer(t *testing.T, providerStatus int) *testServer {
	t.Helper()

	prov := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if providerStatus != http.StatusOK {
			w.WriteHeader(providerStatus)
			return
		}
		switch r.URL.Path {
		case "/v1/wallets":
			w.Write([]byte(`{"address":"0xprovisioned"}`))
		case "/v1/payments/starknet/send":
			w.Write([]byte(`{"tx_hash":"0xrelayed"}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(prov.Close)

	st := newMemStore()
	ts := &testServer{
		store:    st,
		auth:     api.NewAuthenticator("jwt-secret"),
		checkout: checkout.New("chipay", "https://pay.example.com/checkout", "pk_test", webhookSecret),
		alice:    st.addAccount("alice", "0xa11ce"),
		bob:      st.addAccount("bob", ""),
	}
	st.balances[ts.alice.ID] = decimal.RequireFromString("40")

	client := provider.NewClient(prov.URL, "sk_test", "sepolia", time.Second)
	resolver := identity.NewResolver(st)
	h := api.NewHandler(api.Deps{
		Transfers: service.NewTransferService(resolver, settlement.NewRouter(provider.NewSponsoredRelay(client), "0xtoken"), st, ts.checkout, 18),
		Wallets:   service.NewWalletService(st, client, false),
		Completer: service.NewCompleter(st),
		Balances:  balance.NewReader(st, nil, "", 18),
		Resolver:  resolver,
		Accounts:  service.NewAccountService(st),
		Checkout:  ts.checkout,
		Auth:      ts.auth,
	})
	ts.srv = httptest.NewServer(h.Routes())
	t.Cleanup(ts.srv.Close)
	return ts
}

func (ts *testServer) token(t *testing.T, acc *domain.Account) string {
	t.Helper()
	tok, err := ts.auth.Sign(api.Claims{
		Email: acc.Email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   acc.ID.String(),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})
	require.NoError(t, err)
	return tok
}

func (ts *testServer) do(t *testing.T, method, path, body string, headers map[string]string) (int, []byte) {
	t.Helper()
	req, err := http.NewRequestWithContext(t.Context(), method, ts.srv.URL+path, strings.NewReader(body))
	require.NoError(t, err)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	out, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, out
}

func (ts *testServer) authed(t *testing.T, acc *domain.Account, extra map[string]string) map[string]string {
	h := map[string]string{"Authorization": "Bearer " + ts.token(t, acc)}
	for k, v := range extra {
		h[k] = v
	}
	return h
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t, http.StatusOK)

	for _, path := range []string{"/health", "/api/health"} {
		code, body := ts.do(t, http.MethodGet, path, "", nil)
		require.Equal(t, http.StatusOK, code)
		require.JSONEq(t, `{"ok":true}`, string(body))
	}
}

func TestMetrics(t *testing.T) {
	ts := newTestServer(t, http.StatusOK)
	ts.do(t, http.MethodGet, "/health", "", nil)

	code, body := ts.do(t, http.MethodGet, "/metrics", "", nil)
	require.Equal(t, http.StatusOK, code)
	require.Contains(t, string(body), "handlepay_http_requests_total")
}

func TestCreateOrFetchWallet(t *testing.T) {
	ts := newTestServer(t, http.StatusOK)

	code, _ := ts.do(t, http.MethodPost, "/wallets/create-or-fetch", `{"userId":"`+ts.bob.ID.String()+`"}`, ts.authed(t, ts.bob, nil))
	require.Equal(t, http.StatusBadRequest, code)

	body := `{"userId":"` + ts.bob.ID.String() + `","email":"bob@example.com","username":"bob"}`
	code, out := ts.do(t, http.MethodPost, "/api/wallets/create-or-fetch", body, ts.authed(t, ts.bob, nil))
	require.Equal(t, http.StatusOK, code)
	require.JSONEq(t, `{"ok":true,"address":"0xprovisioned"}`, string(out))

	acc, err := ts.store.GetAccount(t.Context(), ts.bob.ID)
	require.NoError(t, err)
	require.Equal(t, "0xprovisioned", acc.SettlementAddress)
}

func TestCreateOrFetchWalletProviderDown(t *testing.T) {
	ts := newTestServer(t, http.StatusInternalServerError)

	body := `{"userId":"` + ts.bob.ID.String() + `","email":"bob@example.com","username":"bob"}`
	code, _ := ts.do(t, http.MethodPost, "/wallets/create-or-fetch", body, ts.authed(t, ts.bob, nil))
	require.Equal(t, http.StatusBadGateway, code)
}

func relaySendBody(from uuid.UUID, amount string) string {
	return `{"fromExternalId":"` + from.String() + `","toAddress":"0xb0b","tokenAddress":"0xtoken","amountDecimals":"` + amount + `"}`
}

func TestRelaySend(t *testing.T) {
	ts := newTestServer(t, http.StatusOK)
	headers := ts.authed(t, ts.alice, nil)

	code, _ := ts.do(t, http.MethodPost, "/payments/send", `{"fromExternalId":"`+ts.alice.ID.String()+`"}`, headers)
	require.Equal(t, http.StatusBadRequest, code)

	code, out := ts.do(t, http.MethodPost, "/payments/send", relaySendBody(ts.alice.ID, "1.5"), headers)
	require.Equal(t, http.StatusOK, code)
	require.JSONEq(t, `{"ok":true,"tx_hash":"0xrelayed"}`, string(out))

	code, _ = ts.do(t, http.MethodPost, "/payments/send", relaySendBody(ts.alice.ID, "1e5"), headers)
	require.Equal(t, http.StatusUnprocessableEntity, code)

	code, _ = ts.do(t, http.MethodPost, "/api/payments/send", relaySendBody(ts.alice.ID, "123456789012345678901"), headers)
	require.Equal(t, http.StatusUnprocessableEntity, code)
}

func TestRelayRoutesRequireOwnAccount(t *testing.T) {
	ts := newTestServer(t, http.StatusOK)
	walletBody := `{"userId":"` + ts.alice.ID.String() + `","email":"alice@example.com","username":"alice"}`

	for _, prefix := range []string{"", "/api"} {
		code, _ := ts.do(t, http.MethodPost, prefix+"/payments/send", relaySendBody(ts.alice.ID, "1"), nil)
		require.Equal(t, http.StatusUnauthorized, code)

		code, _ = ts.do(t, http.MethodPost, prefix+"/wallets/create-or-fetch", walletBody, nil)
		require.Equal(t, http.StatusUnauthorized, code)

		code, _ = ts.do(t, http.MethodPost, prefix+"/payments/send", relaySendBody(ts.alice.ID, "1"), ts.authed(t, ts.bob, nil))
		require.Equal(t, http.StatusForbidden, code)

		code, _ = ts.do(t, http.MethodPost, prefix+"/wallets/create-or-fetch", walletBody, ts.authed(t, ts.bob, nil))
		require.Equal(t, http.StatusForbidden, code)
	}

	acc, err := ts.store.GetAccount(t.Context(), ts.alice.ID)
	require.NoError(t, err)
	require.Equal(t, "0xa11ce", acc.SettlementAddress)
}

func TestTransfersRequireAuth(t *testing.T) {
	ts := newTestServer(t, http.StatusOK)

	code, _ := ts.do(t, http.MethodPost, "/api/v1/transfers", `{"to":"bob","amount":"5"}`, nil)
	require.Equal(t, http.StatusUnauthorized, code)

	expired, err := ts.auth.Sign(api.Claims{RegisteredClaims: jwt.RegisteredClaims{
		Subject:   ts.alice.ID.String(),
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute)),
	}})
	require.NoError(t, err)
	code, _ = ts.do(t, http.MethodGet, "/api/v1/me/balance", "", map[string]string{"Authorization": "Bearer " + expired})
	require.Equal(t, http.StatusUnauthorized, code)

	forged, err := api.NewAuthenticator("other").Sign(api.Claims{RegisteredClaims: jwt.RegisteredClaims{
		Subject:   ts.alice.ID.String(),
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}})
	require.NoError(t, err)
	code, _ = ts.do(t, http.MethodGet, "/api/v1/me/balance", "", map[string]string{"Authorization": "Bearer " + forged})
	require.Equal(t, http.StatusUnauthorized, code)
}

func sendDeferred(t *testing.T, ts *testServer, key string) (int, models.TransferResponse) {
	t.Helper()
	code, out := ts.do(t, http.MethodPost, "/api/v1/transfers", `{"to":"@bob","amount":"5"}`,
		ts.authed(t, ts.alice, map[string]string{api.IdempotencyKeyHeader: key}))
	var resp models.TransferResponse
	require.NoError(t, json.Unmarshal(out, &resp), string(out))
	return code, resp
}

func TestCreateTransferDeferredAndReplay(t *testing.T) {
	ts := newTestServer(t, http.StatusOK)

	code, first := sendDeferred(t, ts, "k1")
	require.Equal(t, http.StatusCreated, code)
	require.Equal(t, domain.StatusPending, first.Transfer.Status)
	require.Equal(t, domain.KindSend, first.Transfer.Kind)
	require.Equal(t, "chipay", *first.Transfer.Processor)
	require.Equal(t, "tx_"+first.Transfer.ID.String(), *first.Transfer.ExternalRef)
	require.Contains(t, first.CheckoutURL, "reference=tx_"+first.Transfer.ID.String())

	code, second := sendDeferred(t, ts, "k1")
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, first.Transfer.ID, second.Transfer.ID)
	require.Len(t, ts.store.transfers, 1)

	code, _ = ts.do(t, http.MethodPost, "/api/v1/transfers", `{"to":"@bob","amount":"6"}`,
		ts.authed(t, ts.alice, map[string]string{api.IdempotencyKeyHeader: "k1"}))
	require.Equal(t, http.StatusUnprocessableEntity, code)
}

func TestCreateTransferErrors(t *testing.T) {
	ts := newTestServer(t, http.StatusOK)

	tests := map[string]struct {
		body string
		want int
	}{
		"unknown handle": {body: `{"to":"@carol","amount":"5"}`, want: http.StatusNotFound},
		"bad amount":     {body: `{"to":"bob","amount":"abc"}`, want: http.StatusUnprocessableEntity},
		"self send":      {body: `{"to":"alice","amount":"5"}`, want: http.StatusUnprocessableEntity},
		"malformed json": {body: `{"to":`, want: http.StatusBadRequest},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			code, _ := ts.do(t, http.MethodPost, "/api/v1/transfers", tc.body, ts.authed(t, ts.alice, nil))
			require.Equal(t, tc.want, code)
		})
	}
	require.Empty(t, ts.store.transfers)
}

func signedWebhook(ts *testServer, ref string) (string, map[string]string) {
	body := `{"type":"payment.completed","data":{"external_ref":"` + ref + `","tx_hash":"0xsettled"}}`
	return body, map[string]string{checkout.SignatureHeader: "sha256=" + ts.checkout.Sign([]byte(body))}
}

func TestWebhook(t *testing.T) {
	ts := newTestServer(t, http.StatusOK)
	_, sent := sendDeferred(t, ts, "")
	ref := *sent.Transfer.ExternalRef

	body, headers := signedWebhook(ts, ref)

	code, _ := ts.do(t, http.MethodPost, "/webhooks/chipay", body, map[string]string{checkout.SignatureHeader: "deadbeef"})
	require.Equal(t, http.StatusUnauthorized, code)
	code, _ = ts.do(t, http.MethodPost, "/webhooks/chipay", body, nil)
	require.Equal(t, http.StatusUnauthorized, code)

	tr, err := ts.store.GetTransfer(t.Context(), sent.Transfer.ID)
	require.NoError(t, err)
	require.Equal(t, domain.StatusPending, tr.Status)

	code, _ = ts.do(t, http.MethodPost, "/webhooks/stripe", body, headers)
	require.Equal(t, http.StatusNotFound, code)

	for _, path := range []string{"/webhooks/chipay", "/api/webhooks/chipay"} {
		code, out := ts.do(t, http.MethodPost, path, body, headers)
		require.Equal(t, http.StatusOK, code)
		require.JSONEq(t, `{"ok":true}`, string(out))

		tr, err := ts.store.GetTransfer(t.Context(), sent.Transfer.ID)
		require.NoError(t, err)
		require.Equal(t, domain.StatusCompleted, tr.Status)
		require.Equal(t, "0xsettled", *tr.TxHash)
	}
	require.Len(t, ts.store.transfers, 1)
}

func TestWebhookUnknownReference(t *testing.T) {
	ts := newTestServer(t, http.StatusOK)

	body, headers := signedWebhook(ts, "tx_"+uuid.NewString())
	code, _ := ts.do(t, http.MethodPost, "/webhooks/chipay", body, headers)
	require.Equal(t, http.StatusOK, code)
}

func TestGetTransferVisibility(t *testing.T) {
	ts := newTestServer(t, http.StatusOK)
	_, sent := sendDeferred(t, ts, "")
	path := "/api/v1/transfers/" + sent.Transfer.ID.String()

	code, out := ts.do(t, http.MethodGet, path, "", ts.authed(t, ts.bob, nil))
	require.Equal(t, http.StatusOK, code)
	var resp models.TransferResponse
	require.NoError(t, json.Unmarshal(out, &resp))
	require.Equal(t, domain.KindReceive, resp.Transfer.Kind)
	require.Equal(t, "alice", resp.Transfer.FromUsername)
	require.Equal(t, "bob", resp.Transfer.ToUsername)

	carol := ts.store.addAccount("carol", "")
	code, _ = ts.do(t, http.MethodGet, path, "", ts.authed(t, carol, nil))
	require.Equal(t, http.StatusForbidden, code)

	code, _ = ts.do(t, http.MethodGet, "/api/v1/transfers/not-a-uuid", "", ts.authed(t, ts.bob, nil))
	require.Equal(t, http.StatusBadRequest, code)
}

func TestHistoryAndRequests(t *testing.T) {
	ts := newTestServer(t, http.StatusOK)
	sendDeferred(t, ts, "")

	code, _ := ts.do(t, http.MethodPost, "/api/v1/requests", `{"from":"alice","amount":"3","note":"lunch"}`, ts.authed(t, ts.bob, nil))
	require.Equal(t, http.StatusCreated, code)

	code, out := ts.do(t, http.MethodGet, "/api/v1/me/transfers?limit=10", "", ts.authed(t, ts.bob, nil))
	require.Equal(t, http.StatusOK, code)
	var list models.TransferList
	require.NoError(t, json.Unmarshal(out, &list))
	require.Len(t, list.Transfers, 2)

	kinds := map[domain.Kind]int{}
	for _, tr := range list.Transfers {
		kinds[tr.Kind]++
		require.Equal(t, "alice", tr.FromUsername)
		require.Equal(t, "bob", tr.ToUsername)
	}
	require.Equal(t, map[domain.Kind]int{domain.KindReceive: 1, domain.KindRequest: 1}, kinds)

	code, out = ts.do(t, http.MethodGet, "/api/v1/me/transfers?onchain=true", "", ts.authed(t, ts.bob, nil))
	require.Equal(t, http.StatusOK, code)
	require.JSONEq(t, `{"transfers":[]}`, string(out))

	code, _ = ts.do(t, http.MethodGet, "/api/v1/me/transfers?limit=-1", "", ts.authed(t, ts.bob, nil))
	require.Equal(t, http.StatusBadRequest, code)
}

func TestBalanceAndHandleLookup(t *testing.T) {
	ts := newTestServer(t, http.StatusOK)

	code, out := ts.do(t, http.MethodGet, "/api/v1/me/balance", "", ts.authed(t, ts.alice, nil))
	require.Equal(t, http.StatusOK, code)
	var b domain.Balance
	require.NoError(t, json.NewDecoder(bytes.NewReader(out)).Decode(&b))
	require.True(t, decimal.NewFromInt(40).Equal(b.Total))
	require.Nil(t, b.OnChain)

	code, out = ts.do(t, http.MethodGet, "/api/v1/handles/bob", "", ts.authed(t, ts.alice, nil))
	require.Equal(t, http.StatusOK, code)
	var p models.Profile
	require.NoError(t, json.Unmarshal(out, &p))
	require.Equal(t, ts.bob.ID, p.ID)
	require.False(t, p.Provisioned)

	code, _ = ts.do(t, http.MethodGet, "/api/v1/handles/nobody", "", ts.authed(t, ts.alice, nil))
	require.Equal(t, http.StatusNotFound, code)
}

func TestListAccounts(t *testing.T) {
	ts := newTestServer(t, http.StatusOK)
	ts.store.addAccount("carol", "0xca401")

	code, out := ts.do(t, http.MethodGet, "/api/v1/accounts", "", ts.authed(t, ts.alice, nil))
	require.Equal(t, http.StatusOK, code)
	var list models.ProfileList
	require.NoError(t, json.Unmarshal(out, &list))
	require.Len(t, list.Accounts, 2)
	require.Equal(t, "bob", list.Accounts[0].Username)
	require.Equal(t, "carol", list.Accounts[1].Username)
	require.True(t, list.Accounts[1].Provisioned)

	code, out = ts.do(t, http.MethodGet, "/api/v1/accounts?limit=1", "", ts.authed(t, ts.bob, nil))
	require.Equal(t, http.StatusOK, code)
	require.NoError(t, json.Unmarshal(out, &list))
	require.Len(t, list.Accounts, 1)
	require.Equal(t, "alice", list.Accounts[0].Username)

	code, _ = ts.do(t, http.MethodGet, "/api/v1/accounts?limit=zero", "", ts.authed(t, ts.bob, nil))
	require.Equal(t, http.StatusBadRequest, code)

	code, _ = ts.do(t, http.MethodGet, "/api/v1/accounts", "", nil)
	require.Equal(t, http.StatusUnauthorized, code)
}
