package services

import (
	"fmt"
	"strings"

	"github.com/johnfercher/maroto/v2"
	"github.com/johnfercher/maroto/v2/pkg/components/col"
	"github.com/johnfercher/maroto/v2/pkg/components/line"
	"github.com/johnfercher/maroto/v2/pkg/components/text"
	"github.com/johnfercher/maroto/v2/pkg/config"
	"github.com/johnfercher/maroto/v2/pkg/consts/align"
	"github.com/johnfercher/maroto/v2/pkg/consts/fontstyle"
	"github.com/johnfercher/maroto/v2/pkg/core"
	"github.com/johnfercher/maroto/v2/pkg/props"

	"portfolio-payments/internal/models"
)

// ReceiptService generates PDF payment receipts
type ReceiptService struct {
	businessName string
}

// NewReceiptService creates a receipt service. businessName appears in the
// receipt header.
func NewReceiptService(businessName string) *ReceiptService {
	if businessName == "" {
		businessName = "Portfolio Payments"
	}
	return &ReceiptService{businessName: businessName}
}

// GenerateReceipt renders a PDF receipt for the payment and returns the
// document bytes with a suggested filename.
func (s *ReceiptService) GenerateReceipt(record *models.PaymentRecord) ([]byte, string, error) {
	cfg := config.NewBuilder().
		WithLeftMargin(10).
		WithTopMargin(15).
		WithRightMargin(10).
		Build()

	m := maroto.New(cfg)

	s.addHeader(m, record)
	s.addPaymentDetails(m, record)
	s.addCustomerDetails(m, record)
	s.addFooter(m)

	doc, err := m.Generate()
	if err != nil {
		return nil, "", fmt.Errorf("failed to generate receipt PDF: %w", err)
	}

	filename := fmt.Sprintf("receipt-%s.pdf", record.MerchantTransactionID)
	return doc.GetBytes(), filename, nil
}

func (s *ReceiptService) addHeader(m core.Maroto, record *models.PaymentRecord) {
	m.AddRow(20,
		col.New(6).Add(
			text.New(s.businessName, props.Text{
				Size:  16,
				Style: fontstyle.Bold,
				Align: align.Left,
			}),
		),
		col.New(6).Add(
			text.New("PAYMENT RECEIPT", props.Text{
				Size:  14,
				Style: fontstyle.Bold,
				Align: align.Right,
			}),
			text.New(fmt.Sprintf("# %s", record.MerchantTransactionID), props.Text{
				Size:  9,
				Top:   7,
				Align: align.Right,
			}),
		),
	)
	m.AddRow(5, line.NewCol(12))
}

func (s *ReceiptService) addPaymentDetails(m core.Maroto, record *models.PaymentRecord) {
	amount := fmt.Sprintf("%s %.2f", record.Currency, float64(record.AmountMinorUnits)/100)

	m.AddRow(8,
		col.New(6).Add(
			text.New(fmt.Sprintf("Date: %s", record.CreatedAt.Format("Jan 02, 2006 15:04")), props.Text{
				Size:  10,
				Align: align.Left,
			}),
		),
		col.New(6).Add(
			text.New(fmt.Sprintf("Status: %s", record.Status), props.Text{
				Size:  10,
				Style: fontstyle.Bold,
				Align: align.Right,
			}),
		),
	)
	m.AddRow(8,
		col.New(6).Add(
			text.New(fmt.Sprintf("Gateway: %s", record.Gateway), props.Text{
				Size:  10,
				Align: align.Left,
			}),
		),
		col.New(6).Add(
			text.New(fmt.Sprintf("Amount: %s", amount), props.Text{
				Size:  12,
				Style: fontstyle.Bold,
				Align: align.Right,
			}),
		),
	)
	if record.ProviderTransactionID != "" {
		m.AddRow(8,
			col.New(12).Add(
				text.New(fmt.Sprintf("Provider Reference: %s", record.ProviderTransactionID), props.Text{
					Size:  9,
					Align: align.Left,
				}),
			),
		)
	}
	if record.PaymentMode != "" {
		m.AddRow(8,
			col.New(12).Add(
				text.New(fmt.Sprintf("Payment Mode: %s", record.PaymentMode), props.Text{
					Size:  9,
					Align: align.Left,
				}),
			),
		)
	}
	if record.ServiceName != "" {
		m.AddRow(8,
			col.New(12).Add(
				text.New(fmt.Sprintf("Service: %s", record.ServiceName), props.Text{
					Size:  10,
					Align: align.Left,
				}),
			),
		)
	}
	m.AddRow(5, line.NewCol(12))
}

func (s *ReceiptService) addCustomerDetails(m core.Maroto, record *models.PaymentRecord) {
	if record.CustomerName == "" && record.CustomerEmail == "" && record.CustomerMessage == "" {
		return
	}

	m.AddRow(8,
		col.New(12).Add(
			text.New("CUSTOMER", props.Text{
				Size:  10,
				Style: fontstyle.Bold,
				Align: align.Left,
			}),
		),
	)
	if record.CustomerName != "" {
		m.AddRow(6,
			col.New(12).Add(
				text.New(record.CustomerName, props.Text{Size: 9, Align: align.Left}),
			),
		)
	}
	if record.CustomerEmail != "" {
		m.AddRow(6,
			col.New(12).Add(
				text.New(record.CustomerEmail, props.Text{Size: 9, Align: align.Left}),
			),
		)
	}
	if record.CustomerMessage != "" {
		for _, msgLine := range wrapText(record.CustomerMessage, 90) {
			m.AddRow(5,
				col.New(12).Add(
					text.New(msgLine, props.Text{Size: 8, Align: align.Left}),
				),
			)
		}
	}
	m.AddRow(5, line.NewCol(12))
}

func (s *ReceiptService) addFooter(m core.Maroto) {
	m.AddRow(10,
		col.New(12).Add(
			text.New("Thank you for your payment.", props.Text{
				Size:  9,
				Align: align.Center,
				Top:   4,
			}),
		),
	)
}

// wrapText breaks free text into lines of at most width characters, on word
// boundaries where possible.
func wrapText(s string, width int) []string {
	words := strings.Fields(s)
	if len(words) == 0 {
		return nil
	}

	var lines []string
	current := words[0]
	for _, word := range words[1:] {
		if len(current)+1+len(word) > width {
			lines = append(lines, current)
			current = word
			continue
		}
		current += " " + word
	}
	lines = append(lines, current)
	return lines
}
