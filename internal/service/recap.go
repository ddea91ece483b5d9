package service

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"swimnotify/internal/gateway"
	"swimnotify/internal/models"
	"swimnotify/internal/roster"
)

const recapDays = 7

// WeeklyRecap sends each coach the next seven days of sessions and the
// admin a summary across coaches. Long recaps are chunked.
func (p *Producers) WeeklyRecap(ctx context.Context) (RunSummary, error) {
	from, _ := p.today()
	to := from.AddDate(0, 0, recapDays)

	sessions, err := p.source.SessionsBetween(ctx, from, to)
	if err != nil {
		return RunSummary{}, fmt.Errorf("failed to load sessions for recap: %w", err)
	}
	students, coaches, err := p.directory(ctx)
	if err != nil {
		return RunSummary{}, err
	}

	perCoach := make(map[string][]roster.Session)
	for _, session := range sessions {
		perCoach[session.CoachID] = append(perCoach[session.CoachID], session)
	}
	coachIDs := make([]string, 0, len(perCoach))
	for id := range perCoach {
		if _, ok := coaches[id]; ok {
			coachIDs = append(coachIDs, id)
		}
	}
	sort.Slice(coachIDs, func(i, j int) bool {
		return coaches[coachIDs[i]].Name < coaches[coachIDs[j]].Name
	})

	period := fmt.Sprintf("%s - %s", formatDate(from), formatDate(to.AddDate(0, 0, -1)))

	var msgs []gateway.OutboundMessage
	for _, id := range coachIDs {
		coach := coaches[id]
		if coach.Phone == "" {
			continue
		}
		msgs = append(msgs, p.chunked(gateway.OutboundMessage{
			To:            coach.Phone,
			Category:      models.CategoryReport,
			RecipientName: coach.Name,
			Metadata:      map[string]string{"coach_id": coach.ID, "job": JobWeeklyRecap},
		}, p.coachRecap(coach, period, perCoach[id], students))...)
	}

	if p.config.AdminPhone != "" {
		msgs = append(msgs, p.chunked(gateway.OutboundMessage{
			To:            p.config.AdminPhone,
			Category:      models.CategoryReport,
			RecipientName: "Admin",
			Metadata:      map[string]string{"job": JobWeeklyRecap},
		}, adminRecap(period, coachIDs, coaches, perCoach))...)
	}

	if len(msgs) == 0 {
		p.logger.WithField(LogFieldJob, JobWeeklyRecap).Info("No recap recipients, nothing to send")
		return RunSummary{}, nil
	}
	return p.sendAll(ctx, JobWeeklyRecap, msgs)
}

func (p *Producers) coachRecap(coach roster.Coach, period string, sessions []roster.Session, students map[string]roster.Student) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Rekap jadwal %s\n%s\n", coach.Name, period)

	day := ""
	for _, session := range sessions {
		start := session.Start.In(p.config.Location)
		if d := formatDate(start); d != day {
			day = d
			fmt.Fprintf(&b, "\n%s\n", day)
		}
		fmt.Fprintf(&b, "- %s %s (%d siswa): %s\n", formatClock(start), session.Pool, len(session.StudentIDs), studentNames(session, students))
	}
	fmt.Fprintf(&b, "\nTotal %d sesi minggu ini.", len(sessions))
	return b.String()
}

func adminRecap(period string, coachIDs []string, coaches map[string]roster.Coach, perCoach map[string][]roster.Session) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Rekap mingguan akademi\n%s\n\n", period)

	totalSessions, totalSlots := 0, 0
	for _, id := range coachIDs {
		slots := 0
		for _, session := range perCoach[id] {
			slots += len(session.StudentIDs)
		}
		fmt.Fprintf(&b, "- %s: %d sesi, %d siswa\n", coaches[id].Name, len(perCoach[id]), slots)
		totalSessions += len(perCoach[id])
		totalSlots += slots
	}
	fmt.Fprintf(&b, "\nTotal %d sesi, %d siswa terjadwal.", totalSessions, totalSlots)
	return b.String()
}
