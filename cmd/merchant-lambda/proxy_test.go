package main

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"testing"

	"github.com/aws/aws-lambda-go/events"
	"github.com/labstack/echo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/motforex/merchant/provider"
)

func echoServer() *echo.Echo {
	e := echo.New()
	e.POST("/callback/:method/:id", func(c echo.Context) error {
		b, _ := io.ReadAll(c.Request().Body)
		return c.JSON(http.StatusAccepted, map[string]string{
			"method": c.Param("method"),
			"id":     c.Param("id"),
			"q":      c.QueryParam("qpay_payment_id"),
			"body":   string(b),
			"rid":    c.Request().Header.Get("X-Request-Id"),
		})
	})
	return e
}

func TestProxyServe(t *testing.T) {
	p := &proxy{h: echoServer()}
	req := events.APIGatewayProxyRequest{
		HTTPMethod:            http.MethodPost,
		Path:                  "/callback/qpay/42",
		QueryStringParameters: map[string]string{"qpay_payment_id": "p-1"},
		Headers:               map[string]string{"content-type": "application/json"},
		Body:                  base64.StdEncoding.EncodeToString([]byte(`{"ok":true}`)),
		IsBase64Encoded:       true,
	}
	req.RequestContext.RequestID = "gw-1"

	res, err := p.Serve(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusAccepted, res.StatusCode)

	var got map[string]string
	require.NoError(t, json.Unmarshal([]byte(res.Body), &got))
	assert.Equal(t, map[string]string{
		"method": "qpay",
		"id":     "42",
		"q":      "p-1",
		"body":   `{"ok":true}`,
		"rid":    "gw-1",
	}, got)
}

func TestProxyBadBody(t *testing.T) {
	p := &proxy{h: echoServer()}
	_, err := p.Serve(context.Background(), events.APIGatewayProxyRequest{
		HTTPMethod:      http.MethodPost,
		Path:            "/callback/qpay/42",
		Body:            "%%%",
		IsBase64Encoded: true,
	})
	assert.Error(t, err)
}

func TestHandlerDispatch(t *testing.T) {
	store := provider.NewMemoryTokenStore()
	h := &handler{
		http:      &proxy{h: echoServer()},
		refresher: provider.NewRefresher(store, 0),
	}

	res, err := h.Invoke(context.Background(), json.RawMessage(`{"httpMethod":"POST","path":"/callback/qpay/1"}`))
	require.NoError(t, err)
	assert.Equal(t, http.StatusAccepted, res.(events.APIGatewayProxyResponse).StatusCode)

	_, err = h.Invoke(context.Background(), json.RawMessage(`{"source":"aws.events","detail-type":"Scheduled Event"}`))
	assert.NoError(t, err)

	_, err = h.Invoke(context.Background(), json.RawMessage(`{"foo":1}`))
	assert.Error(t, err)
}
