// Package mutation defines the requests the client sends to the store, the
// outcomes they resolve to, and the presentation scopes those outcomes
// update.
package mutation

import (
	"fmt"
	"net/http"
	"strings"
)

// Kind identifies a user-triggered mutation.
type Kind int

const (
	// Add puts a product into the cart.
	Add Kind = iota + 1
	// UpdateQty changes the quantity of an existing line item.
	UpdateQty
	// Remove deletes a line item.
	Remove
	// ApplyCoupon redeems a coupon code against the cart.
	ApplyCoupon
	// Subscribe signs an email address up for the newsletter.
	Subscribe
)

var kindNames = map[Kind]string{
	Add:         "add",
	UpdateQty:   "update_qty",
	Remove:      "remove",
	ApplyCoupon: "apply_coupon",
	Subscribe:   "subscribe",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// ParseKind is the inverse of Kind.String.
func ParseKind(s string) (Kind, error) {
	for k, name := range kindNames {
		if name == s {
			return k, nil
		}
	}
	return 0, fmt.Errorf("unknown mutation kind %q", s)
}

// Kinds returns every kind in declaration order.
func Kinds() []Kind {
	return []Kind{Add, UpdateQty, Remove, ApplyCoupon, Subscribe}
}

// Request field names sent to the store.
const (
	FieldProductID = "product_id"
	FieldItemID    = "item_id"
	FieldQuantity  = "quantity"
	FieldCode      = "code"
	FieldEmail     = "email"
)

// Response field names read from the store.
const (
	FieldCartCount      = "cart_count"
	FieldCartTotal      = "cart_total"
	FieldItemTotal      = "item_total"
	FieldValid          = "valid"
	FieldDiscountAmount = "discount_amount"
	FieldStatus         = "status"
	FieldMessage        = "message"
)

// Request is one mutation issued by the user.
//
// IssuedAt is assigned once, when the request is issued, and is strictly
// greater than that of every request issued before it. TargetID is empty
// for kinds that do not address a line item or product.
type Request struct {
	Kind     Kind
	TargetID string
	Payload  map[string]string
	IssuedAt int64
	Method   string
	URL      string
	// TokenField names a form field that carries the anti-forgery token
	// in the body as well as the header. Empty sends the header only.
	TokenField string
}

// Mutating reports whether the request uses a method that changes server
// state. GET, HEAD, OPTIONS and TRACE are read-only.
func (r Request) Mutating() bool {
	return !SafeMethod(r.Method)
}

// SafeMethod reports whether method is read-only.
func SafeMethod(method string) bool {
	switch strings.ToUpper(method) {
	case http.MethodGet, http.MethodHead, http.MethodOptions, http.MethodTrace:
		return true
	default:
		return false
	}
}

func (r Request) String() string {
	if r.TargetID == "" {
		return fmt.Sprintf("%s#%d", r.Kind, r.IssuedAt)
	}
	return fmt.Sprintf("%s(%s)#%d", r.Kind, r.TargetID, r.IssuedAt)
}
