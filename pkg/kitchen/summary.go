// Package kitchen hands completed orders to the kitchen: the orders API that
// persists them and the websocket hub that pushes them to kitchen displays.
package kitchen

import (
	"fmt"
	"strings"

	"github.com/vango-go/vai-kiosk/pkg/order"
)

// Summary renders a one-line description of c, for example
// "2x Cheeseburger [no onions], 1x Sprite - Total: $18.97".
func Summary(c order.Completion) string {
	parts := make([]string, 0, len(c.Items))
	for _, l := range c.Items {
		part := fmt.Sprintf("%dx %s", l.Quantity, l.Item.Name)
		if len(l.Customizations) > 0 {
			part += " [" + strings.Join(l.Customizations, ", ") + "]"
		}
		parts = append(parts, part)
	}
	return fmt.Sprintf("%s - Total: $%.2f", strings.Join(parts, ", "), c.Total)
}
