package bot

import (
	"strconv"
	"strings"

	"enviofinder/data"
	"enviofinder/search"
)

const (
	msgWelcome = "Búsqueda de productos en tuenvio.cu. Envíe una o varias palabras y se le responderá la disponibilidad. También puede probar la /ayuda. Suerte!"

	msgBadCommand = "Ha seleccionado incorrectamente el comando. Por favor, utilice la /ayuda."

	msgNoResults = "No hay productos que contengan la palabra buscada ... 😭"

	msgFoundBanner = "🎉🎉🎉¡¡¡Encontrado!!! 🎉🎉🎉"

	msgLinkCaveat = "Nota: Algunos links de productos no funcionan debido a los ajustes del sitio tuenvio. Rogamos nos disculpen."

	msgSubscriptionLimit = "Ha alcanzado el máximo de suscripciones activas. Elimine alguna con /del o recargue crédito."

	msgCreditExhausted = "Su crédito se ha agotado. El servicio queda en modo de mantenimiento hasta la próxima recarga."

	msgNoStoreSelected = "Seleccione primero una tienda con /t_<tienda> para navegar por departamentos."

	msgLowCredit = "Aviso: su crédito llegó a cero. Las suscripciones quedarán pausadas hasta la próxima recarga."

	msgInternal = "No se pudo completar la operación. Inténtelo de nuevo más tarde."
)

// FormatResult renders an interactive search response: banner, one section
// per store, product lines with the /p_<id> availability command.
func FormatResult(result *search.Result) string {
	if result.Empty() {
		return msgNoResults
	}

	var b strings.Builder
	if result.HasProducts() {
		b.WriteString(msgFoundBanner)
		b.WriteString("\n\n")
	}

	for _, section := range result.Sections {
		b.WriteString("<b>")
		b.WriteString(section.Store.Name)
		b.WriteString("</b>\n")

		if section.Err != nil {
			b.WriteString("Ocurrió la siguiente excepción: ")
			b.WriteString(section.Err.Error())
			b.WriteString("\n\n")
			continue
		}
		if len(section.Products) == 0 {
			b.WriteString("Sin resultados.\n\n")
			continue
		}

		for _, product := range section.Products {
			writeProductLine(&b, product)
		}
		b.WriteString("\n")
	}

	if result.HasProducts() {
		b.WriteString("Para recibir avisos de esta búsqueda use /sub.\n\n")
		b.WriteString(msgLinkCaveat)
	}
	return strings.TrimRight(b.String(), "\n")
}

// FormatNotification renders a background rescan alert.
func FormatNotification(criterion search.Criterion, products []data.Product) string {
	var b strings.Builder
	b.WriteString(msgFoundBanner)
	b.WriteString("\n\nSu suscripción \"")
	b.WriteString(criterion.Value)
	b.WriteString("\" tiene resultados:\n\n")

	for _, product := range products {
		writeProductLine(&b, product)
	}

	b.WriteString("\n")
	b.WriteString(msgLinkCaveat)
	return b.String()
}

func FormatSubscriptionList(subs []data.Subscription) string {
	if len(subs) == 0 {
		return "No tiene suscripciones activas."
	}

	var b strings.Builder
	b.WriteString("Sus suscripciones activas:\n\n")
	for _, sub := range subs {
		b.WriteString("\"")
		b.WriteString(sub.Criterion)
		b.WriteString("\" (")
		b.WriteString(sub.RegionCode)
		b.WriteString(") /del_")
		b.WriteString(strconv.FormatInt(sub.ID, 10))
		b.WriteString("\n")
	}
	return b.String()
}

func FormatHelp(regions []data.Region) string {
	var b strings.Builder
	b.WriteString("Envíe una palabra para buscar. O puede seleccionar una provincia:\n\n")
	for _, region := range regions {
		b.WriteString("/")
		b.WriteString(region.Code)
		b.WriteString(": ")
		b.WriteString(region.Name)
		b.WriteString("\n")
	}
	b.WriteString("\nOtros comandos: /sub, /lista, /credito.")
	return b.String()
}

func writeProductLine(b *strings.Builder, product data.Product) {
	b.WriteString(product.Name)
	b.WriteString(" --> ")
	b.WriteString(product.Price)
	b.WriteString(" /p_")
	b.WriteString(product.ID)
	b.WriteString("\n")
}
