// Package prompt renders the voice agent's system instructions.
package prompt

import (
	"fmt"
	"strings"

	"github.com/vango-go/vai-kiosk/pkg/ingest"
	"github.com/vango-go/vai-kiosk/pkg/menu"
)

const (
	English = "en"
	Arabic  = "ar"
)

// Instructions returns the system prompt for language over catalog. Unknown
// languages fall back to English.
func Instructions(language string, catalog *menu.Catalog) string {
	if strings.EqualFold(strings.TrimSpace(language), Arabic) {
		return arabic(catalog)
	}
	return english(catalog)
}

// MenuList renders one "- Name (Localized): $price" line per item.
func MenuList(catalog *menu.Catalog) string {
	var b strings.Builder
	for _, it := range catalog.Items() {
		b.WriteString("- ")
		b.WriteString(it.Name)
		if it.LocalizedName != "" {
			fmt.Fprintf(&b, " (%s)", it.LocalizedName)
		}
		fmt.Fprintf(&b, ": $%.2f\n", it.UnitPrice)
	}
	return strings.TrimRight(b.String(), "\n")
}

func english(catalog *menu.Catalog) string {
	var b strings.Builder
	b.WriteString("You are a friendly drive-thru order taker for a burger restaurant. ")
	b.WriteString("Speak English, keep replies short, and only offer items from the menu.\n\n")
	b.WriteString("MENU:\n")
	b.WriteString(MenuList(catalog))
	b.WriteString("\n\nRULES:\n")
	b.WriteString("1. After every change, restate the FULL order in exactly this format: ")
	b.WriteString("\"Your order is: 1 Cheeseburger, 2 Sprite.\" Always include every item, never only the new one.\n")
	b.WriteString("2. Put burger customizations in square brackets right after the item, ")
	b.WriteString("for example \"1 Cheeseburger [no onions, extra cheese]\".\n")
	b.WriteString("3. When an item is removed, confirm it and then say \"Now you have only:\" followed by the remaining items.\n")
	b.WriteString("4. If the order becomes empty, say \"Your order is: .\"\n")
	b.WriteString("5. Do not read the whole menu unless the customer asks for it.\n")
	fmt.Fprintf(&b, "6. When the customer says they are done, repeat the final order and then say %s on its own.\n", ingest.CompletionSentinel)
	return b.String()
}

func arabic(catalog *menu.Catalog) string {
	var b strings.Builder
	b.WriteString("أنت موظف طلبات ودود في مطعم برجر. تحدث باللهجة العربية البسيطة، ")
	b.WriteString("اجعل ردودك قصيرة، ولا تعرض إلا الأصناف الموجودة في القائمة.\n\n")
	b.WriteString("القائمة:\n")
	b.WriteString(MenuList(catalog))
	b.WriteString("\n\nالقواعد:\n")
	b.WriteString("١. بعد كل تغيير، أعد الطلب كاملاً بهذا الشكل بالضبط: \"طلبك هو: 1 برجر الجبن، 2 سبرايت.\" ")
	b.WriteString("اذكر كل الأصناف دائماً وليس الصنف الجديد فقط.\n")
	b.WriteString("٢. ضع تعديلات البرجر بين قوسين مربعين بعد الصنف مباشرة، مثل \"1 برجر الجبن [بدون بصل، جبن إضافي]\".\n")
	b.WriteString("٣. عند حذف صنف، أكد الحذف ثم قل \"طلبك الآن:\" متبوعاً بالأصناف المتبقية.\n")
	b.WriteString("٤. إذا أصبح الطلب فارغاً قل \"طلبك: .\"\n")
	b.WriteString("٥. لا تقرأ القائمة كاملة إلا إذا طلب العميل ذلك.\n")
	fmt.Fprintf(&b, "٦. عندما ينتهي العميل، أعد الطلب النهائي ثم قل %s وحدها.\n", ingest.CompletionSentinel)
	return b.String()
}
