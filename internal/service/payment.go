package service

import (
	"context"
	"fmt"
	"strings"

	"swimnotify/internal/gateway"
	"swimnotify/internal/models"
	"swimnotify/internal/roster"
)

// PaymentReminder sends one reminder per student with unpaid invoices
func (p *Producers) PaymentReminder(ctx context.Context) (RunSummary, error) {
	payments, err := p.source.OutstandingPayments(ctx)
	if err != nil {
		return RunSummary{}, fmt.Errorf("failed to load outstanding payments: %w", err)
	}
	if len(payments) == 0 {
		p.logger.WithField(LogFieldJob, JobPaymentReminder).Info("No outstanding payments, nothing to send")
		return RunSummary{}, nil
	}

	studentList, err := p.source.Students(ctx)
	if err != nil {
		return RunSummary{}, fmt.Errorf("failed to load students: %w", err)
	}
	students := make(map[string]roster.Student, len(studentList))
	for _, s := range studentList {
		students[s.ID] = s
	}

	perStudent := make(map[string][]roster.Payment)
	var order []string
	for _, payment := range payments {
		if _, ok := students[payment.StudentID]; !ok {
			continue
		}
		if _, seen := perStudent[payment.StudentID]; !seen {
			order = append(order, payment.StudentID)
		}
		perStudent[payment.StudentID] = append(perStudent[payment.StudentID], payment)
	}

	msgs := make([]gateway.OutboundMessage, 0, len(order))
	for _, id := range order {
		student := students[id]
		if student.ContactPhone() == "" {
			continue
		}
		msgs = append(msgs, gateway.OutboundMessage{
			To:            student.ContactPhone(),
			Body:          p.paymentBody(student, perStudent[id]),
			Category:      models.CategoryReminder,
			RecipientName: student.ContactName(),
			Metadata:      map[string]string{"student_id": student.ID, "job": JobPaymentReminder},
		})
	}

	return p.sendAll(ctx, JobPaymentReminder, msgs)
}

func (p *Producers) paymentBody(student roster.Student, payments []roster.Payment) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Halo %s, berikut tagihan latihan renang %s yang belum dibayar:\n", student.ContactName(), student.Name)

	var total int64
	for _, payment := range payments {
		fmt.Fprintf(&b, "- Periode %s: %s, jatuh tempo %s\n",
			payment.Period, formatRupiah(payment.Amount), formatDate(payment.DueDate.In(p.config.Location)))
		total += payment.Amount
	}
	if len(payments) > 1 {
		fmt.Fprintf(&b, "Total: %s\n", formatRupiah(total))
	}
	b.WriteString("Abaikan pesan ini jika sudah melakukan pembayaran. Terima kasih.")
	return b.String()
}
