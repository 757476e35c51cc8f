package core

import (
	"fmt"
	"html"
	"strings"

	"github.com/shopspring/decimal"
)

// renderOrderConfirmation builds the HTML body queued alongside the order
// commit. Delivery happens out of band.
func renderOrderConfirmation(customerName, orderNumber string, items []OrderItem,
	subtotal, discount, shipping, grandTotal decimal.Decimal) string {

	var b strings.Builder
	b.WriteString("<html><body style=\"font-family: Arial, sans-serif;\">")
	fmt.Fprintf(&b, "<h2>Thank you for your order, %s!</h2>", html.EscapeString(customerName))
	fmt.Fprintf(&b, "<p>Your order <strong>%s</strong> has been confirmed.</p>", html.EscapeString(orderNumber))
	b.WriteString("<table style=\"border-collapse: collapse; width: 100%;\">")
	b.WriteString("<tr><th align=\"left\">Item</th><th align=\"right\">Qty</th><th align=\"right\">Price</th></tr>")
	for _, item := range items {
		fmt.Fprintf(&b, "<tr><td>%s</td><td align=\"right\">%d</td><td align=\"right\">%s</td></tr>",
			html.EscapeString(item.Name), item.Quantity, item.UnitPrice.StringFixed(2))
	}
	b.WriteString("</table>")
	fmt.Fprintf(&b, "<p>Subtotal: %s</p>", subtotal.StringFixed(2))
	if discount.IsPositive() {
		fmt.Fprintf(&b, "<p>Discount: -%s</p>", discount.StringFixed(2))
	}
	if shipping.IsPositive() {
		fmt.Fprintf(&b, "<p>Shipping: %s</p>", shipping.StringFixed(2))
	} else {
		b.WriteString("<p>Shipping: Free</p>")
	}
	fmt.Fprintf(&b, "<p><strong>Total: %s</strong></p>", grandTotal.StringFixed(2))
	b.WriteString("<p>We will let you know as soon as your order ships.</p>")
	b.WriteString("</body></html>")
	return b.String()
}

// renderCartReminder builds the nudge sent for a cart that went quiet. The
// final reminder before the cap switches to last-chance copy.
func renderCartReminder(customerName string, items []CartItem, cartTotal decimal.Decimal, reminderNumber, maxReminders int) string {
	greeting := "Hi"
	if customerName != "" {
		greeting = "Hi " + html.EscapeString(customerName)
	}

	var b strings.Builder
	b.WriteString("<html><body style=\"font-family: Arial, sans-serif;\">")
	fmt.Fprintf(&b, "<h2>%s, you left something behind</h2>", greeting)
	b.WriteString("<p>Your cart is still waiting for you:</p><ul>")
	for _, item := range items {
		fmt.Fprintf(&b, "<li>%d × %s — %s</li>",
			item.Quantity, html.EscapeString(item.Name), item.Price.StringFixed(2))
	}
	b.WriteString("</ul>")
	fmt.Fprintf(&b, "<p><strong>Cart total: %s</strong></p>", cartTotal.StringFixed(2))
	if reminderNumber >= maxReminders {
		b.WriteString("<p>This is our last reminder. Pieces in your cart are not held and may sell out.</p>")
	} else {
		b.WriteString("<p>Popular pieces sell out quickly. Complete your order while they are still in stock.</p>")
	}
	b.WriteString("</body></html>")
	return b.String()
}
