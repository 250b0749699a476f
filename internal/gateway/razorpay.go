// Package gateway adapts the Razorpay SDK to the payment service.
package gateway

import (
	"context"
	"fmt"

	razorpay "github.com/razorpay/razorpay-go"
)

// orderCreator is satisfied by the SDK's order resource
type orderCreator interface {
	Create(data map[string]interface{}, extraHeaders map[string]string) (map[string]interface{}, error)
}

// Razorpay creates orders through the Razorpay Orders API
type Razorpay struct {
	orders orderCreator
}

func NewRazorpay(keyID, keySecret string) *Razorpay {
	client := razorpay.NewClient(keyID, keySecret)
	return &Razorpay{orders: client.Order}
}

// CreateOrder forwards data to the provider. The SDK call is not context
// aware, so cancellation only stops the wait.
func (r *Razorpay) CreateOrder(ctx context.Context, data map[string]interface{}) (map[string]interface{}, error) {
	type result struct {
		order map[string]interface{}
		err   error
	}
	done := make(chan result, 1)
	go func() {
		order, err := r.orders.Create(data, nil)
		done <- result{order: order, err: err}
	}()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-done:
		if res.err != nil {
			return nil, fmt.Errorf("razorpay order create: %w", res.err)
		}
		return res.order, nil
	}
}
