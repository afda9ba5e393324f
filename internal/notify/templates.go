package notify

import (
	"bytes"
	"fmt"
	htmltemplate "html/template"
	"strconv"
	"text/template"
	"time"

	"github.com/safar/storefront/internal/models"
	"github.com/shopspring/decimal"
)

// Pair is the customer confirmation and the admin notice for one trigger.
// Both are rendered from the same data so the figures always agree.
type Pair struct {
	User  Message
	Admin Message
}

type orderLine struct {
	Name     string
	Quantity int
	Price    string
	Subtotal string
}

type orderData struct {
	OrderNumber     string
	CustomerName    string
	CustomerEmail   string
	CustomerPhone   string
	ShippingAddress string
	Pincode         string
	PaymentMethod   string
	PaymentStatus   string
	Total           string
	PlacedAt        string
	Lines           []orderLine
}

type bookingData struct {
	ID          int64
	Name        string
	Email       string
	Phone       string
	PreferredAt string
	Message     string
}

func money(d decimal.Decimal) string {
	return "Rs. " + d.StringFixed(2)
}

const orderUserText = `Hi {{.CustomerName}},

Thank you for your order {{.OrderNumber}}.
{{range .Lines}}
- {{.Name}} x {{.Quantity}} @ {{.Price}} = {{.Subtotal}}{{end}}

Total: {{.Total}}
Payment: {{.PaymentMethod}} ({{.PaymentStatus}})

Shipping to:
{{.ShippingAddress}} - {{.Pincode}}
`

const orderUserHTML = `<p>Hi {{.CustomerName}},</p>
<p>Thank you for your order <strong>{{.OrderNumber}}</strong>.</p>
<table>
{{range .Lines}}<tr><td>{{.Name}}</td><td>{{.Quantity}}</td><td>{{.Price}}</td><td>{{.Subtotal}}</td></tr>
{{end}}</table>
<p><strong>Total: {{.Total}}</strong></p>
<p>Payment: {{.PaymentMethod}} ({{.PaymentStatus}})</p>
<p>Shipping to:<br>{{.ShippingAddress}} - {{.Pincode}}</p>
`

const orderAdminText = `New order {{.OrderNumber}} placed {{.PlacedAt}}

Customer: {{.CustomerName}} <{{.CustomerEmail}}>, {{.CustomerPhone}}
Address: {{.ShippingAddress}} - {{.Pincode}}
Payment: {{.PaymentMethod}} ({{.PaymentStatus}})
{{range .Lines}}
- {{.Name}} x {{.Quantity}} @ {{.Price}} = {{.Subtotal}}{{end}}

Total: {{.Total}}
`

const orderAdminHTML = `<h2>New order {{.OrderNumber}}</h2>
<p>Placed {{.PlacedAt}}</p>
<p>Customer: {{.CustomerName}} &lt;{{.CustomerEmail}}&gt;, {{.CustomerPhone}}<br>
Address: {{.ShippingAddress}} - {{.Pincode}}<br>
Payment: {{.PaymentMethod}} ({{.PaymentStatus}})</p>
<table>
{{range .Lines}}<tr><td>{{.Name}}</td><td>{{.Quantity}}</td><td>{{.Price}}</td><td>{{.Subtotal}}</td></tr>
{{end}}</table>
<p><strong>Total: {{.Total}}</strong></p>
`

const bookingUserText = `Hi {{.Name}},

We have received your appointment request #{{.ID}}.
Preferred time: {{.PreferredAt}}

Our team will call you on {{.Phone}} to confirm.
`

const bookingUserHTML = `<p>Hi {{.Name}},</p>
<p>We have received your appointment request <strong>#{{.ID}}</strong>.</p>
<p>Preferred time: {{.PreferredAt}}</p>
<p>Our team will call you on {{.Phone}} to confirm.</p>
`

const bookingAdminText = `New appointment request #{{.ID}}

Name: {{.Name}}
Email: {{.Email}}
Phone: {{.Phone}}
Preferred time: {{.PreferredAt}}

{{.Message}}
`

const bookingAdminHTML = `<h2>New appointment request #{{.ID}}</h2>
<p>Name: {{.Name}}<br>Email: {{.Email}}<br>Phone: {{.Phone}}<br>Preferred time: {{.PreferredAt}}</p>
<p>{{.Message}}</p>
`

var (
	orderUserTextTmpl    = template.Must(template.New("order_user").Parse(orderUserText))
	orderUserHTMLTmpl    = htmltemplate.Must(htmltemplate.New("order_user").Parse(orderUserHTML))
	orderAdminTextTmpl   = template.Must(template.New("order_admin").Parse(orderAdminText))
	orderAdminHTMLTmpl   = htmltemplate.Must(htmltemplate.New("order_admin").Parse(orderAdminHTML))
	bookingUserTextTmpl  = template.Must(template.New("booking_user").Parse(bookingUserText))
	bookingUserHTMLTmpl  = htmltemplate.Must(htmltemplate.New("booking_user").Parse(bookingUserHTML))
	bookingAdminTextTmpl = template.Must(template.New("booking_admin").Parse(bookingAdminText))
	bookingAdminHTMLTmpl = htmltemplate.Must(htmltemplate.New("booking_admin").Parse(bookingAdminHTML))
)

func render(text *template.Template, html *htmltemplate.Template, data interface{}) (string, string, error) {
	var t, h bytes.Buffer
	if err := text.Execute(&t, data); err != nil {
		return "", "", fmt.Errorf("render %s text: %w", text.Name(), err)
	}
	if err := html.Execute(&h, data); err != nil {
		return "", "", fmt.Errorf("render %s html: %w", html.Name(), err)
	}
	return t.String(), h.String(), nil
}

func newOrderData(order *models.Order) orderData {
	data := orderData{
		OrderNumber:     order.OrderNumber,
		CustomerName:    order.Name,
		CustomerEmail:   order.Email,
		CustomerPhone:   order.Phone,
		ShippingAddress: order.ShippingAddress,
		Pincode:         order.Pincode,
		PaymentMethod:   order.PaymentMethod,
		PaymentStatus:   order.PaymentStatus,
		Total:           money(order.TotalAmount),
		PlacedAt:        order.CreatedAt.Format(time.RFC1123),
	}
	for _, item := range order.Items {
		name := "Product " + strconv.FormatInt(item.ProductID, 10)
		if item.Product != nil {
			name = item.Product.Name
		}
		data.Lines = append(data.Lines, orderLine{
			Name:     name,
			Quantity: item.Quantity,
			Price:    money(item.UnitPrice),
			Subtotal: money(item.Subtotal),
		})
	}
	return data
}

// RenderOrder builds the confirmation for the buyer and the notice for the admin address.
func RenderOrder(order *models.Order, sender Sender) (*Pair, error) {
	data := newOrderData(order)

	userText, userHTML, err := render(orderUserTextTmpl, orderUserHTMLTmpl, data)
	if err != nil {
		return nil, err
	}
	adminText, adminHTML, err := render(orderAdminTextTmpl, orderAdminHTMLTmpl, data)
	if err != nil {
		return nil, err
	}

	return &Pair{
		User: Message{
			From: sender.Address, FromName: sender.Name, To: order.Email,
			Subject: fmt.Sprintf("Order confirmation %s", order.OrderNumber),
			Text:    userText, HTML: userHTML,
		},
		Admin: Message{
			From: sender.Address, FromName: sender.Name, To: sender.AdminAddress,
			Subject: fmt.Sprintf("New order %s - %s", order.OrderNumber, data.Total),
			Text:    adminText, HTML: adminHTML,
		},
	}, nil
}

// RenderBooking builds the acknowledgement for the visitor and the notice for the admin address.
func RenderBooking(booking *models.Booking, sender Sender) (*Pair, error) {
	data := bookingData{
		ID:          booking.ID,
		Name:        booking.Name,
		Email:       booking.Email,
		Phone:       booking.Phone,
		PreferredAt: "to be arranged",
		Message:     booking.Message,
	}
	if booking.PreferredAt != nil {
		data.PreferredAt = booking.PreferredAt.Format(time.RFC1123)
	}

	userText, userHTML, err := render(bookingUserTextTmpl, bookingUserHTMLTmpl, data)
	if err != nil {
		return nil, err
	}
	adminText, adminHTML, err := render(bookingAdminTextTmpl, bookingAdminHTMLTmpl, data)
	if err != nil {
		return nil, err
	}

	return &Pair{
		User: Message{
			From: sender.Address, FromName: sender.Name, To: booking.Email,
			Subject: fmt.Sprintf("Appointment request #%d received", booking.ID),
			Text:    userText, HTML: userHTML,
		},
		Admin: Message{
			From: sender.Address, FromName: sender.Name, To: sender.AdminAddress,
			Subject: fmt.Sprintf("New appointment request #%d from %s", booking.ID, booking.Name),
			Text:    adminText, HTML: adminHTML,
		},
	}, nil
}
