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

	"github.com/loclhse/toolbanhangUIUX/internal/pos"
	"github.com/oklog/ulid/v2"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type seen struct {
	method    string
	path      string
	auth      string
	requestID string
	body      []byte
}

func newServer(t *testing.T, status int, reply string) (*Client, *seen) {
	t.Helper()
	s := &seen{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.method = r.Method
		s.path = r.URL.EscapedPath()
		s.auth = r.Header.Get("Authorization")
		s.requestID = r.Header.Get("X-Request-ID")
		s.body, _ = io.ReadAll(r.Body)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		io.WriteString(w, reply)
	}))
	t.Cleanup(srv.Close)
	logger, _ := test.NewNullLogger()
	return NewClient(srv.URL+"/", "secret", time.Second, logger), s
}

func TestListOrders(t *testing.T) {
	c, s := newServer(t, http.StatusOK, `[{"id":12,"status":"PENDING","items":[{"id":"3","name":"Pho","quantity":2}]}]`)

	orders, err := c.ListOrders(context.Background())
	require.NoError(t, err)
	require.Len(t, orders, 1)
	assert.Equal(t, pos.ID("12"), orders[0].ID)
	assert.Equal(t, 2, orders[0].Items[0].Quantity)

	assert.Equal(t, http.MethodGet, s.method)
	assert.Equal(t, "/api/orders", s.path)
	assert.Equal(t, "Bearer secret", s.auth)
	assert.Empty(t, s.requestID, "reads carry no request id")
}

func TestCreateOrderSendsBodyAndRequestID(t *testing.T) {
	c, s := newServer(t, http.StatusCreated, `{"id":"99","tableId":4,"status":"PENDING"}`)
	var created []pos.Order
	c.OnOrderCreated(func(o pos.Order) { created = append(created, o) })

	o, err := c.CreateOrder(context.Background(), pos.CreateOrderRequest{
		TableID: "4",
		Items:   []pos.OrderLine{{FoodItemID: "7", Quantity: 1}},
	})
	require.NoError(t, err)
	assert.Equal(t, pos.ID("99"), o.ID)
	assert.Equal(t, pos.ID("4"), o.TableID)
	require.Len(t, created, 1)
	assert.Equal(t, pos.ID("99"), created[0].ID)

	assert.Equal(t, http.MethodPost, s.method)
	_, err = ulid.Parse(s.requestID)
	assert.NoError(t, err)
	assert.JSONEq(t, `{"tableId":"4","items":[{"foodItemId":"7","quantity":1}]}`, string(s.body))
}

func TestMutatingCallsUseOrderPath(t *testing.T) {
	c, s := newServer(t, http.StatusOK, `{"id":"a/b"}`)

	_, err := c.UpdateOrder(context.Background(), "a/b", pos.UpdateOrderRequest{})
	require.NoError(t, err)
	assert.Equal(t, http.MethodPut, s.method)
	assert.Equal(t, "/api/orders/a%2Fb", s.path)

	_, err = c.GetOrder(context.Background(), "5")
	require.NoError(t, err)
	assert.Equal(t, "/api/orders/5", s.path)
}

func TestDeleteOrderNoContent(t *testing.T) {
	c, s := newServer(t, http.StatusNoContent, "")

	require.NoError(t, c.DeleteOrder(context.Background(), "5"))
	assert.Equal(t, http.MethodDelete, s.method)
	assert.Equal(t, "/api/orders/5", s.path)
	assert.NotEmpty(t, s.requestID)
}

func TestCatalogEndpoints(t *testing.T) {
	c, s := newServer(t, http.StatusOK, `[{"id":1,"name":"T1","status":"FREE"}]`)
	tables, err := c.ListTables(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "/api/tables", s.path)
	assert.Equal(t, "T1", tables[0].Name)

	c, s = newServer(t, http.StatusOK, `[{"id":2,"name":"Pho","price":45000,"available":true}]`)
	foods, err := c.ListFoodItems(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "/api/food-items", s.path)
	assert.True(t, foods[0].Available)
}

func TestPayments(t *testing.T) {
	c, s := newServer(t, http.StatusOK, `{"id":"p1","orderId":9,"amount":120,"status":"PAID"}`)

	p, err := c.CreatePayment(context.Background(), pos.CreatePaymentRequest{OrderID: "9", Amount: 120, Method: "CASH"})
	require.NoError(t, err)
	assert.True(t, p.IsConfirmed())
	var sent map[string]any
	require.NoError(t, json.Unmarshal(s.body, &sent))
	assert.Equal(t, "CASH", sent["method"])

	p, err = c.GetPaymentByOrder(context.Background(), "9")
	require.NoError(t, err)
	assert.Equal(t, "/api/payments/order/9", s.path)
	assert.Equal(t, pos.ID("9"), p.OrderID)
}

func TestNon2xxIsStatusError(t *testing.T) {
	c, _ := newServer(t, http.StatusNotFound, "order not found\n")

	_, err := c.GetOrder(context.Background(), "1")
	var se *StatusError
	require.True(t, errors.As(err, &se))
	assert.True(t, se.NotFound())
	assert.Equal(t, "order not found", se.Body)
	assert.Equal(t, "GET /api/orders/1: 404 order not found", se.Error())
}

func TestContextCancellation(t *testing.T) {
	c, _ := newServer(t, http.StatusOK, `[]`)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.ListOrders(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestMalformedBody(t *testing.T) {
	c, _ := newServer(t, http.StatusOK, `{not json`)
	_, err := c.ListOrders(context.Background())
	assert.Error(t, err)
}
