package pdf

import (
	"context"

	"github.com/johnfercher/maroto/v2/pkg/components/col"
	"github.com/johnfercher/maroto/v2/pkg/components/text"
	"github.com/johnfercher/maroto/v2/pkg/consts/align"
	"github.com/johnfercher/maroto/v2/pkg/consts/fontstyle"
	"github.com/johnfercher/maroto/v2/pkg/props"
)

func (r *Renderer) RenderReceipt(ctx context.Context, doc ReceiptDocument) ([]byte, error) {
	m := newDocument()

	m.AddRow(12,
		text.NewCol(8, "Receipt", props.Text{
			Size:  20,
			Style: fontstyle.Bold,
			Align: align.Left,
		}),
		text.NewCol(4, doc.TenantName, props.Text{
			Size:  12,
			Align: align.Right,
		}),
	)

	m.AddRow(22,
		col.New(6).Add(
			text.New("Receipt number: "+doc.ReceiptNumber, props.Text{Top: 0}),
			text.New("Invoice number: "+doc.InvoiceNumber, props.Text{Top: 5}),
			text.New("Date paid: "+doc.PaidAt, props.Text{Top: 10}),
		),
		col.New(6).Add(
			text.New("Billed to", props.Text{Style: fontstyle.Bold}),
			text.New(doc.AccountName, props.Text{Top: 5}),
			text.New(doc.AccountEmail, props.Text{Top: 10}),
		),
	)

	m.AddRow(14,
		text.NewCol(12, doc.Amount+" "+doc.Currency+" paid on "+doc.PaidAt, props.Text{
			Size:  14,
			Style: fontstyle.Bold,
			Top:   4,
		}),
	)

	m.AddRow(16,
		col.New(12).Add(
			text.New("Payment method: "+doc.Gateway, props.Text{Size: 9}),
			text.New("Transaction reference: "+doc.TransactionRef, props.Text{Size: 9, Top: 5}),
		),
	)

	if doc.SupportEmail != "" {
		m.AddRow(10,
			text.NewCol(12, "Questions? Contact "+doc.SupportEmail, props.Text{Size: 8, Top: 2}),
		)
	}

	generated, err := m.Generate()
	if err != nil {
		return nil, err
	}
	return generated.GetBytes(), nil
}
