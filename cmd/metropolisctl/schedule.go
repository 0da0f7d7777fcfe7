package main

import (
	"encoding/json"
	"time"

	"github.com/spf13/cobra"

	"github.com/noah-isme/metropolis-api/internal/repository"
	"github.com/noah-isme/metropolis-api/internal/service"
)

var (
	scheduleTermID string
	scheduleDate   string
)

var scheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "Compute day schedules",
}

var scheduleDayCmd = &cobra.Command{
	Use:   "day",
	Short: "Print the schedule of one date as JSON",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logr, err := environment()
		if err != nil {
			return err
		}
		formats, err := loadRegistry(cfg.Timetable.FormatsFile)
		if err != nil {
			return err
		}
		loc, err := time.LoadLocation(cfg.Timetable.Timezone)
		if err != nil {
			return err
		}
		db, err := openDatabase(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer db.Close()

		terms := service.NewTermService(repository.NewTermRepository(db), formats, nil, logr)
		schedules := service.NewScheduleService(terms, repository.NewEventRepository(db), repository.NewTimetableRepository(db), formats,
			nil, nil, service.ScheduleOptions{Location: loc, StrictVariants: cfg.Timetable.StrictVariants}, logr)

		day := schedules.Today()
		if scheduleDate != "" {
			if day, err = service.ParseDate("date", scheduleDate); err != nil {
				return err
			}
		}

		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		if scheduleTermID == "" {
			term, schedule, err := schedules.CurrentDaySchedule(cmd.Context(), day)
			if err != nil {
				return err
			}
			return enc.Encode(map[string]interface{}{"term": term, "schedule": schedule})
		}
		schedule, err := schedules.DaySchedule(cmd.Context(), scheduleTermID, day)
		if err != nil {
			return err
		}
		return enc.Encode(schedule)
	},
}

func init() {
	scheduleDayCmd.Flags().StringVar(&scheduleTermID, "term", "", "term id, defaults to the term covering the date")
	scheduleDayCmd.Flags().StringVar(&scheduleDate, "date", "", "date as YYYY-MM-DD, defaults to today")
	scheduleCmd.AddCommand(scheduleDayCmd)
}
