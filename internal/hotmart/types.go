package hotmart

// Event is the webhook payload Hotmart delivers for every sales event.
// Almost everything is optional on the wire, so handlers must tolerate
// missing branches instead of assuming the happy path.
type Event struct {
	ID           string    `json:"id"`
	Event        string    `json:"event"`
	Version      string    `json:"version"`
	CreationDate int64     `json:"creation_date"`
	Hottok       string    `json:"hottok"`
	Data         EventData `json:"data"`
}

type EventData struct {
	Product      *Product      `json:"product,omitempty"`
	Buyer        *Buyer        `json:"buyer,omitempty"`
	Purchase     *Purchase     `json:"purchase,omitempty"`
	Subscription *Subscription `json:"subscription,omitempty"`

	// Cancellation events carry the subscriber at the top level with a
	// structured phone object, unlike purchase events.
	Subscriber            *Subscriber `json:"subscriber,omitempty"`
	CancellationDate      int64       `json:"cancellation_date,omitempty"`
	DateNextCharge        int64       `json:"date_next_charge,omitempty"`
	ActualRecurrenceValue float64     `json:"actual_recurrence_value,omitempty"`
}

type Product struct {
	ID    int64  `json:"id"`
	Name  string `json:"name"`
	Ucode string `json:"ucode"`
}

type Buyer struct {
	Name          string `json:"name"`
	Email         string `json:"email"`
	CheckoutPhone string `json:"checkout_phone"`
	Phone         string `json:"phone"`
}

// ContactPhone prefers the checkout phone, which is the number the buyer
// actually typed during payment.
func (b *Buyer) ContactPhone() string {
	if b == nil {
		return ""
	}
	if b.CheckoutPhone != "" {
		return b.CheckoutPhone
	}
	return b.Phone
}

type Price struct {
	Value        float64 `json:"value"`
	CurrencyCode string  `json:"currency_code"`
}

type Payment struct {
	Method             string `json:"method"`
	Type               string `json:"type"`
	InstallmentsNumber int    `json:"installments_number"`
}

type Offer struct {
	CouponCode string `json:"coupon_code"`
}

type Purchase struct {
	OrderDate          int64    `json:"order_date"`
	Price              *Price   `json:"price,omitempty"`
	Payment            *Payment `json:"payment,omitempty"`
	Status             string   `json:"status"`
	Transaction        string   `json:"transaction"`
	RecurrencyNumber   int      `json:"recurrency_number"`
	OriginalOfferPrice *Price   `json:"original_offer_price,omitempty"`
	Offer              *Offer   `json:"offer,omitempty"`
}

// Amount returns the purchase value and currency with the fallbacks the
// rest of the flow expects (0 and USD) so a sparse payload never aborts.
func (p *Purchase) Amount() (float64, string) {
	if p == nil || p.Price == nil {
		return 0, "USD"
	}
	currency := p.Price.CurrencyCode
	if currency == "" {
		currency = "USD"
	}
	return p.Price.Value, currency
}

// TransactionID falls back to "N/A" when no transaction was reported.
func (p *Purchase) TransactionID() string {
	if p == nil || p.Transaction == "" {
		return "N/A"
	}
	return p.Transaction
}

type Plan struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

type Subscription struct {
	ID               int64                   `json:"id"`
	Status           string                  `json:"status"`
	Plan             *Plan                   `json:"plan,omitempty"`
	Subscriber       *SubscriptionSubscriber `json:"subscriber,omitempty"`
	RecurrencyNumber int                     `json:"recurrency_number"`
}

type SubscriptionSubscriber struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Phone string `json:"phone"`
}

type Subscriber struct {
	Code  string           `json:"code"`
	Name  string           `json:"name"`
	Email string           `json:"email"`
	Phone *SubscriberPhone `json:"phone,omitempty"`
}

type SubscriberPhone struct {
	DDDPhone string `json:"dddPhone"`
	Phone    string `json:"phone"`
	DDDCell  string `json:"dddCell"`
	Cell     string `json:"cell"`
}

// Number flattens the structured phone, preferring the cell number.
func (p *SubscriberPhone) Number() string {
	if p == nil {
		return ""
	}
	if p.Cell != "" {
		return p.DDDCell + p.Cell
	}
	if p.Phone != "" {
		return p.DDDPhone + p.Phone
	}
	return ""
}

// PlanName returns the subscription plan name or "N/A".
func (d *EventData) PlanName() string {
	if d.Subscription == nil || d.Subscription.Plan == nil || d.Subscription.Plan.Name == "" {
		return "N/A"
	}
	return d.Subscription.Plan.Name
}

// ProductName returns the product name or "N/A".
func (d *EventData) ProductName() string {
	if d.Product == nil || d.Product.Name == "" {
		return "N/A"
	}
	return d.Product.Name
}
