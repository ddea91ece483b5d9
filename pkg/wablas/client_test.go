package wablas

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"swimnotify/pkg/circuitbreaker"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc, secret string) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return NewClient(Config{BaseURL: server.URL, Token: "tok", Secret: secret}, logger)
}

func TestSendMessage_Success(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, EndpointSendMessage, r.URL.Path)
		assert.Equal(t, "tok.sec", r.Header.Get("Authorization"))
		assert.Equal(t, "application/x-www-form-urlencoded", r.Header.Get("Content-Type"))
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "6282140044677", r.PostForm.Get("phone"))
		assert.Equal(t, "Test", r.PostForm.Get("message"))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":true,"message":"Message is pending","data":{"device_id":"D1","messages":[{"id":"msg-123","phone":"6282140044677","status":"pending"}]}}`))
	}, "sec")

	result, err := client.SendMessage(context.Background(), "6282140044677", "Test")
	require.NoError(t, err)
	assert.Equal(t, "msg-123", result.MessageID)
	assert.Equal(t, "pending", result.Status)
}

func TestSendMessage_TokenOnlyAuthorization(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "tok", r.Header.Get("Authorization"))
		_, _ = w.Write([]byte(`{"status":true,"data":{"messages":[{"id":"m"}]}}`))
	}, "")

	_, err := client.SendMessage(context.Background(), "6281", "x")
	require.NoError(t, err)
}

func TestSendMessage_StatusFalseKeepsDiagnostic(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"status":false,"message":"token invalid, please check your device","data":[]}`))
	}, "")

	result, err := client.SendMessage(context.Background(), "6281", "x")
	assert.Nil(t, result)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusOK, apiErr.StatusCode)
	assert.Equal(t, "token invalid, please check your device", apiErr.Message)
}

func TestSendMessage_Non2xx(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`unauthorized device`))
	}, "")

	_, err := client.SendMessage(context.Background(), "6281", "x")
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusUnauthorized, apiErr.StatusCode)
	assert.Equal(t, "unauthorized device", apiErr.Message)
}

func TestSendMessage_RejectionsDoNotTripBreaker(t *testing.T) {
	calls := 0
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"message":"invalid phone"}`))
	}, "")

	for i := 0; i < 8; i++ {
		_, err := client.SendMessage(context.Background(), "6281", "x")
		require.Error(t, err)
	}
	assert.Equal(t, 8, calls)
	assert.Equal(t, "CLOSED", client.Breaker().StateName)
}

func TestSendMessage_ServerErrorsTripBreaker(t *testing.T) {
	calls := 0
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusBadGateway)
	}, "")

	for i := 0; i < 5; i++ {
		_, _ = client.SendMessage(context.Background(), "6281", "x")
	}
	_, err := client.SendMessage(context.Background(), "6281", "x")

	assert.True(t, errors.Is(err, circuitbreaker.ErrOpen))
	assert.Equal(t, 5, calls)
}

func TestSendDocument(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, EndpointSendDocument, r.URL.Path)
		require.NoError(t, r.ParseMultipartForm(1<<20))
		assert.Equal(t, "6281", r.FormValue("phone"))
		assert.Equal(t, "Invoice Maret", r.FormValue("caption"))

		file, header, err := r.FormFile("file")
		require.NoError(t, err)
		defer file.Close()
		content, _ := io.ReadAll(file)
		assert.Equal(t, "invoice.pdf", header.Filename)
		assert.Equal(t, "%PDF-1.4", string(content))

		_, _ = w.Write([]byte(`{"status":true,"data":{"messages":[{"id":"doc-1"}]}}`))
	}, "")

	result, err := client.SendDocument(context.Background(), "6281", Document{
		Filename: "invoice.pdf",
		Content:  []byte("%PDF-1.4"),
		Caption:  "Invoice Maret",
	})
	require.NoError(t, err)
	assert.Equal(t, "doc-1", result.MessageID)
}

func TestSendDocument_Validation(t *testing.T) {
	client := NewClient(Config{Token: "tok"}, nil)

	_, err := client.SendDocument(context.Background(), "6281", Document{Content: []byte("x")})
	assert.Error(t, err)

	_, err = client.SendDocument(context.Background(), "6281", Document{Filename: "a.pdf"})
	assert.Error(t, err)
}

func TestCheckPhone(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, EndpointCheckPhone, r.URL.Path)
		phone := r.URL.Query().Get("phones")
		status := "offline"
		if phone == "6282140044677" {
			status = "online"
		}
		_, _ = w.Write([]byte(`{"status":"success","data":[{"phone":"` + phone + `","status":"` + status + `"}]}`))
	}, "")

	ok, err := client.CheckPhone(context.Background(), "6282140044677")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = client.CheckPhone(context.Background(), "6280000000000")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestConfigured(t *testing.T) {
	assert.False(t, NewClient(Config{}, nil).Configured())
	assert.True(t, NewClient(Config{Token: "t"}, nil).Configured())
}

func TestFlag_Unmarshal(t *testing.T) {
	var f flag
	require.NoError(t, f.UnmarshalJSON([]byte(`true`)))
	assert.True(t, bool(f))
	require.NoError(t, f.UnmarshalJSON([]byte(`"success"`)))
	assert.True(t, bool(f))
	require.NoError(t, f.UnmarshalJSON([]byte(`"error"`)))
	assert.False(t, bool(f))
	assert.Error(t, f.UnmarshalJSON([]byte(`12`)))
}
