package commands

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/wonny/flof/backend/internal/market"
	"github.com/wonny/flof/backend/pkg/httputil"
)

// calendarCmd represents the calendar command
var calendarCmd = &cobra.Command{
	Use:   "calendar",
	Short: "경제 이벤트 캘린더 (Type A 감지)",
	Long: `고영향 경제 이벤트 캘린더를 로드하고 특정 시각의 활성 이벤트를 확인합니다.

소스:
  --file  JSON 파일 ([{"name":"CPI","datetime":"2026-03-12T08:30:00","impact":"high"}])
  --url   JSON 또는 HTML 캘린더 페이지 (기본: CALENDAR_URL)

Example:
  go run ./cmd/quant calendar check --file events.json --at "2026-03-12 08:31"
  go run ./cmd/quant calendar fetch --url https://example.com/calendar`,
}

var calendarFetchCmd = &cobra.Command{
	Use:     "fetch",
	Aliases: []string{"list"},
	Short:   "이벤트 로드 및 목록 출력",
	RunE:    runCalendarFetch,
}

var calendarCheckCmd = &cobra.Command{
	Use:   "check",
	Short: "특정 시각의 활성 이벤트 확인",
	RunE:  runCalendarCheck,
}

var (
	calendarFile string
	calendarURL  string
	calendarAt   string
)

func init() {
	rootCmd.AddCommand(calendarCmd)
	calendarCmd.AddCommand(calendarFetchCmd, calendarCheckCmd)

	calendarCmd.PersistentFlags().StringVar(&calendarFile, "file", "", "이벤트 JSON 파일")
	calendarCmd.PersistentFlags().StringVar(&calendarURL, "url", "", "캘린더 URL (기본: CALENDAR_URL)")
	calendarCheckCmd.Flags().StringVar(&calendarAt, "at", "", "확인 시각 YYYY-MM-DD HH:MM (세션 타임존, 기본: 현재)")
}

// loadCalendar builds the event calendar from --file or the calendar URL
func loadCalendar(cmd *cobra.Command) (*market.EventCalendar, *time.Location, error) {
	rt, err := loadRuntime(nil)
	if err != nil {
		return nil, nil, err
	}
	strat := rt.provider.Config()
	loc := strat.Location()
	cal := market.NewEventCalendar(strat.Calendar, loc, rt.log.WithComponent("calendar"))

	if calendarFile != "" {
		f, err := os.Open(calendarFile)
		if err != nil {
			return nil, nil, fmt.Errorf("open calendar file: %w", err)
		}
		defer f.Close()
		if err := cal.LoadJSON(f); err != nil {
			return nil, nil, err
		}
		return cal, loc, nil
	}

	url := calendarURL
	if url == "" {
		url = rt.cfg.CalendarURL
	}
	if url == "" {
		return nil, nil, fmt.Errorf("either --file, --url or CALENDAR_URL is required")
	}
	n, err := cal.Fetch(cmd.Context(), httputil.New(rt.log).WithRetry(2, time.Second), url)
	if err != nil {
		return nil, nil, err
	}
	PrintInfo(fmt.Sprintf("Fetched %d events from %s", n, url))
	return cal, loc, nil
}

func runCalendarFetch(cmd *cobra.Command, args []string) error {
	cal, loc, err := loadCalendar(cmd)
	if err != nil {
		return err
	}

	events := cal.Events()
	PrintHeader(fmt.Sprintf("Economic Events (%d)", len(events)))
	widths := []int{18, 30, 8, 10}
	PrintTableHeader([]string{"Time", "Event", "Impact", "Type"}, widths)
	for _, e := range events {
		PrintTableRow([]string{
			e.Time.In(loc).Format("2006-01-02 15:04"),
			e.Name,
			e.Impact,
			e.Type,
		}, widths)
	}
	return nil
}

func runCalendarCheck(cmd *cobra.Command, args []string) error {
	cal, loc, err := loadCalendar(cmd)
	if err != nil {
		return err
	}

	at := time.Now().In(loc)
	if calendarAt != "" {
		at, err = time.ParseInLocation("2006-01-02 15:04", calendarAt, loc)
		if err != nil {
			return fmt.Errorf("parse --at: %w", err)
		}
	}

	PrintKeyValue("At", at.Format("2006-01-02 15:04 MST"), 12)
	if cal.HasActiveEvent(at) {
		PrintWarning("Type A event active: new entries are blocked")
	} else {
		PrintSuccess("No active event")
	}
	if next, ok := cal.NextEvent(at); ok {
		PrintKeyValue("Next event", fmt.Sprintf("%s at %s (in %s)", next.Name,
			next.Time.In(loc).Format("2006-01-02 15:04"), next.Time.Sub(at).Round(time.Minute)), 12)
	}
	return nil
}
