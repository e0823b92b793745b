package menu

var defaultItems = []Item{
	{Name: "Cheeseburger", LocalizedName: "برجر الجبن", UnitPrice: 7.99},
	{Name: "Chicken Burger", LocalizedName: "برجر دجاج", UnitPrice: 8.49},
	{Name: "Veggie Burger", LocalizedName: "برجر نباتي", UnitPrice: 7.49},
	{Name: "Large Fries", LocalizedName: "بطاطس كبيرة", UnitPrice: 4.99},
	{Name: "Medium Fries", LocalizedName: "بطاطس وسط", UnitPrice: 3.99},
	{Name: "Small Fries", LocalizedName: "بطاطس صغيرة", UnitPrice: 2.99},
	{Name: "Coca Cola", LocalizedName: "كوكاكولا", UnitPrice: 2.99},
	{Name: "Sprite", LocalizedName: "سبرايت", UnitPrice: 2.99},
	{Name: "Orange Juice", LocalizedName: "عصير برتقال", UnitPrice: 3.49},
	{Name: "Water", LocalizedName: "ماء", UnitPrice: 1.99},
}

// Default returns the built-in drive-thru menu.
func Default() *Catalog {
	c, err := New(defaultItems)
	if err != nil {
		panic("menu: invalid default catalog: " + err.Error())
	}
	return c
}
