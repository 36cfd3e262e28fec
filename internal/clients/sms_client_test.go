package clients

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"portfolio-payments/internal/models"
)

func TestSMSClient_Send(t *testing.T) {
	var gotPath, gotTo, gotFrom, gotBody string
	var gotUser, gotPass string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotUser, gotPass, _ = r.BasicAuth()
		assert.NoError(t, r.ParseForm())
		gotTo = r.PostFormValue("To")
		gotFrom = r.PostFormValue("From")
		gotBody = r.PostFormValue("Body")
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"sid":"SM123","status":"queued"}`))
	}))
	defer server.Close()

	client := NewSMSClient("AC123", "token", "+15550001111", server.URL)
	err := client.Send(context.Background(), "+919876543210", "Payment received")

	assert.NoError(t, err)
	assert.Equal(t, "/2010-04-01/Accounts/AC123/Messages.json", gotPath)
	assert.Equal(t, "AC123", gotUser)
	assert.Equal(t, "token", gotPass)
	assert.Equal(t, "+919876543210", gotTo)
	assert.Equal(t, "+15550001111", gotFrom)
	assert.Equal(t, "Payment received", gotBody)
}

func TestSMSClient_SendAPIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"code":21211,"message":"Invalid 'To' phone number"}`))
	}))
	defer server.Close()

	client := NewSMSClient("AC123", "token", "+15550001111", server.URL)
	err := client.Send(context.Background(), "not-a-number", "hello")

	assert.Error(t, err)
	assert.Contains(t, err.Error(), "status 400")
}

func TestSMSClient_SendUnconfigured(t *testing.T) {
	client := NewSMSClient("", "", "", "")

	err := client.Send(context.Background(), "+919876543210", "hello")
	assert.ErrorIs(t, err, models.ErrConfiguration)
}
