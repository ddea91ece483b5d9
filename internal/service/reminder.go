package service

import (
	"context"
	"fmt"
	"strings"

	"swimnotify/internal/gateway"
	"swimnotify/internal/models"
	"swimnotify/internal/roster"
)

// DailyReminder sends each student their sessions for today and each coach
// their agenda
func (p *Producers) DailyReminder(ctx context.Context) (RunSummary, error) {
	from, to := p.today()
	sessions, err := p.source.SessionsBetween(ctx, from, to)
	if err != nil {
		return RunSummary{}, fmt.Errorf("failed to load today's sessions: %w", err)
	}
	if len(sessions) == 0 {
		p.logger.WithField(LogFieldJob, JobDailyReminder).Info("No sessions today, nothing to send")
		return RunSummary{}, nil
	}

	students, coaches, err := p.directory(ctx)
	if err != nil {
		return RunSummary{}, err
	}

	var msgs []gateway.OutboundMessage
	msgs = append(msgs, p.studentReminders(sessions, students, coaches)...)
	msgs = append(msgs, p.coachAgendas(sessions, students, coaches)...)

	return p.sendAll(ctx, JobDailyReminder, msgs)
}

func (p *Producers) directory(ctx context.Context) (map[string]roster.Student, map[string]roster.Coach, error) {
	studentList, err := p.source.Students(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load students: %w", err)
	}
	coachList, err := p.source.Coaches(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load coaches: %w", err)
	}

	students := make(map[string]roster.Student, len(studentList))
	for _, s := range studentList {
		students[s.ID] = s
	}
	coaches := make(map[string]roster.Coach, len(coachList))
	for _, c := range coachList {
		coaches[c.ID] = c
	}
	return students, coaches, nil
}

func (p *Producers) studentReminders(sessions []roster.Session, students map[string]roster.Student, coaches map[string]roster.Coach) []gateway.OutboundMessage {
	perStudent := make(map[string][]roster.Session)
	var order []string
	for _, session := range sessions {
		for _, id := range session.StudentIDs {
			if _, ok := students[id]; !ok {
				continue
			}
			if _, seen := perStudent[id]; !seen {
				order = append(order, id)
			}
			perStudent[id] = append(perStudent[id], session)
		}
	}

	msgs := make([]gateway.OutboundMessage, 0, len(order))
	for _, id := range order {
		student := students[id]
		if student.ContactPhone() == "" {
			continue
		}

		var b strings.Builder
		fmt.Fprintf(&b, "Halo %s, pengingat jadwal latihan renang %s hari ini:\n", student.ContactName(), student.Name)
		for _, session := range perStudent[id] {
			start := session.Start.In(p.config.Location)
			end := session.End().In(p.config.Location)
			fmt.Fprintf(&b, "- %s-%s di %s", formatClock(start), formatClock(end), session.Pool)
			if coach, ok := coaches[session.CoachID]; ok {
				fmt.Fprintf(&b, " bersama %s", coach.Name)
			}
			b.WriteString("\n")
		}
		b.WriteString("Sampai jumpa di kolam!")

		msgs = append(msgs, gateway.OutboundMessage{
			To:            student.ContactPhone(),
			Body:          b.String(),
			Category:      models.CategoryReminder,
			RecipientName: student.ContactName(),
			Metadata:      map[string]string{"student_id": student.ID, "job": JobDailyReminder},
		})
	}
	return msgs
}

func (p *Producers) coachAgendas(sessions []roster.Session, students map[string]roster.Student, coaches map[string]roster.Coach) []gateway.OutboundMessage {
	perCoach := make(map[string][]roster.Session)
	var order []string
	for _, session := range sessions {
		if _, ok := coaches[session.CoachID]; !ok {
			continue
		}
		if _, seen := perCoach[session.CoachID]; !seen {
			order = append(order, session.CoachID)
		}
		perCoach[session.CoachID] = append(perCoach[session.CoachID], session)
	}

	from, _ := p.today()
	var msgs []gateway.OutboundMessage
	for _, id := range order {
		coach := coaches[id]
		if coach.Phone == "" {
			continue
		}

		var b strings.Builder
		fmt.Fprintf(&b, "Agenda %s, %s:\n", coach.Name, formatDate(from))
		for _, session := range perCoach[id] {
			start := session.Start.In(p.config.Location)
			end := session.End().In(p.config.Location)
			fmt.Fprintf(&b, "- %s-%s %s: %s\n", formatClock(start), formatClock(end), session.Pool, studentNames(session, students))
		}
		fmt.Fprintf(&b, "Total %d sesi.", len(perCoach[id]))

		msgs = append(msgs, p.chunked(gateway.OutboundMessage{
			To:            coach.Phone,
			Category:      models.CategoryReminder,
			RecipientName: coach.Name,
			Metadata:      map[string]string{"coach_id": coach.ID, "job": JobDailyReminder},
		}, b.String())...)
	}
	return msgs
}

func studentNames(session roster.Session, students map[string]roster.Student) string {
	names := make([]string, 0, len(session.StudentIDs))
	for _, id := range session.StudentIDs {
		if s, ok := students[id]; ok {
			names = append(names, s.Name)
		}
	}
	if len(names) == 0 {
		return "-"
	}
	return strings.Join(names, ", ")
}
