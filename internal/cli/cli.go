// Package cli implements the terminal subcommands.
package cli

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"golang.org/x/term"

	"github.com/gmsas95/dosewise-cli/internal/adherence"
	"github.com/gmsas95/dosewise-cli/internal/app"
	apperrors "github.com/gmsas95/dosewise-cli/internal/errors"
	"github.com/gmsas95/dosewise-cli/internal/medication"
)

// HandleAddCommand adds a medication from flags.
func HandleAddCommand(a *app.App, args []string) error {
	fs := flag.NewFlagSet("add", flag.ExitOnError)
	name := fs.String("name", "", "Medication name (required)")
	dosage := fs.String("dosage", "", "Dosage, e.g. 100mg (required)")
	times := fs.String("times", "", "Comma-separated HH:MM dose times; empty means as-needed")
	duration := fs.Int("duration", medication.DurationOngoing, "Treatment length in days; omit for ongoing")
	supply := fs.Int("supply", 0, "Units on hand")
	total := fs.Int("total", 0, "Units per full supply")
	refillAt := fs.Int("refill-at", 20, "Low-supply threshold percentage")
	remind := fs.Bool("remind", true, "Schedule dose reminders")
	refillRemind := fs.Bool("refill-remind", false, "Schedule refill reminders")
	notes := fs.String("notes", "", "Free-form notes")
	fs.Parse(args)

	med := medication.Medication{
		Name:            *name,
		Dosage:          *dosage,
		StartDate:       time.Now(),
		DurationDays:    *duration,
		ReminderEnabled: *remind,
		CurrentSupply:   *supply,
		TotalSupply:     *total,
		RefillAt:        *refillAt,
		RefillReminder:  *refillRemind,
		Notes:           *notes,
	}
	if *times != "" {
		for _, slot := range strings.Split(*times, ",") {
			med.Times = append(med.Times, strings.TrimSpace(slot))
		}
	}

	saved, err := a.AddMedication(context.Background(), med)
	if err != nil {
		if saved != nil && apperrors.IsScheduling(err) {
			fmt.Printf("Added %s (%s) but reminders could not be scheduled: %v\n", saved.Name, saved.ID, err)
			return nil
		}
		return err
	}

	fmt.Printf("Added %s %s (%s)\n", saved.Name, saved.Dosage, saved.ID)
	if len(saved.Times) > 0 && saved.ReminderEnabled {
		fmt.Printf("Reminders at %s\n", strings.Join(saved.Times, ", "))
	}
	return nil
}

// HandleListCommand prints all medications with supply state.
func HandleListCommand(a *app.App) error {
	meds, err := a.Registry.List()
	if err != nil {
		return err
	}
	if len(meds) == 0 {
		fmt.Println("No medications yet. Add one with: dosewise add -name ... -dosage ...")
		return nil
	}

	for i := range meds {
		med := &meds[i]
		schedule := "as needed"
		if len(med.Times) > 0 {
			schedule = strings.Join(med.Times, ", ")
		}
		fmt.Printf("%s  %s %s\n", med.ID, med.Name, med.Dosage)
		fmt.Printf("    schedule: %s (%s)\n", schedule, FormatDuration(med.DurationDays))
		if med.TotalSupply > 0 {
			fmt.Printf("    supply: %d/%d (%.0f%%, %s)\n",
				med.CurrentSupply, med.TotalSupply,
				medication.SupplyPercentage(med), medication.Status(med))
		}
	}
	return nil
}

// HandleTakeCommand records a dose for a medication by id or name prefix.
func HandleTakeCommand(a *app.App, args []string) error {
	fs := flag.NewFlagSet("take", flag.ExitOnError)
	skipped := fs.Bool("skipped", false, "Record the dose as skipped instead of taken")
	fs.Parse(args)

	if fs.NArg() == 0 {
		return fmt.Errorf("usage: dosewise take [-skipped] <medication id or name>")
	}

	med, err := resolveMedication(a, fs.Arg(0))
	if err != nil {
		return err
	}

	event, err := a.RecordDose(context.Background(), med.ID, !*skipped, time.Time{})
	if err != nil && !apperrors.IsScheduling(err) {
		return err
	}

	verb := "Took"
	if !event.Taken {
		verb = "Skipped"
	}
	fmt.Printf("%s %s %s at %s\n", verb, med.Name, med.Dosage, event.Timestamp.Format("15:04"))
	return nil
}

// HandleProgressCommand prints adherence for a day (default today).
func HandleProgressCommand(a *app.App, args []string) error {
	fs := flag.NewFlagSet("progress", flag.ExitOnError)
	dateArg := fs.String("date", "", "Day to report in YYYY-MM-DD (default today)")
	fs.Parse(args)

	date := time.Now()
	if *dateArg != "" {
		parsed, err := time.ParseInLocation("2006-01-02", *dateArg, time.Local)
		if err != nil {
			return fmt.Errorf("date must be YYYY-MM-DD")
		}
		date = parsed
	}

	progress, err := a.Adherence.ProgressForDay(date)
	if err != nil {
		return err
	}

	fmt.Printf("Progress for %s: %d/%d doses (%.0f%%)\n",
		medication.DayOf(date).Format("2006-01-02"),
		progress.TotalTaken, progress.TotalExpected, progress.Percentage())

	meds, err := a.Registry.List()
	if err != nil {
		return err
	}
	for i := range meds {
		med := &meds[i]
		if !med.ActiveOn(date) {
			continue
		}
		status, err := a.Adherence.StatusForMedicationOnDate(med.ID, date)
		if err != nil {
			return err
		}
		marker := " "
		switch status {
		case adherence.StatusTaken:
			marker = "x"
		case adherence.StatusMissed:
			marker = "!"
		}
		fmt.Printf("  [%s] %s %s\n", marker, med.Name, med.Dosage)
	}
	return nil
}

// HandleRefillCommand records a refill.
func HandleRefillCommand(a *app.App, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: dosewise refill <medication id or name>")
	}

	med, err := resolveMedication(a, args[0])
	if err != nil {
		return err
	}

	refilled, err := a.RecordRefill(context.Background(), med.ID)
	if err != nil && !apperrors.IsScheduling(err) {
		return err
	}
	fmt.Printf("Refilled %s: %d/%d units\n", refilled.Name, refilled.CurrentSupply, refilled.TotalSupply)
	return nil
}

// HandlePinCommand sets, verifies or clears the device PIN.
func HandlePinCommand(a *app.App, args []string) error {
	action := "set"
	if len(args) > 0 {
		action = args[0]
	}

	switch action {
	case "set":
		set, err := a.Auth.IsSet()
		if err != nil {
			return err
		}
		if set {
			current, err := readPin("Current PIN: ")
			if err != nil {
				return err
			}
			if err := a.Auth.Verify(current); err != nil {
				return err
			}
		}
		pin, err := readPin("New PIN: ")
		if err != nil {
			return err
		}
		confirm, err := readPin("Confirm PIN: ")
		if err != nil {
			return err
		}
		if pin != confirm {
			return fmt.Errorf("pins do not match")
		}
		if err := a.Auth.Set(pin); err != nil {
			return err
		}
		fmt.Println("PIN set.")
	case "clear":
		if err := requirePin(a); err != nil {
			return err
		}
		if err := a.Auth.Clear(); err != nil {
			return err
		}
		fmt.Println("PIN cleared.")
	default:
		return fmt.Errorf("usage: dosewise pin [set|clear]")
	}
	return nil
}

// HandleResetCommand wipes all data after PIN check and confirmation.
func HandleResetCommand(a *app.App) error {
	if err := requirePin(a); err != nil {
		return err
	}

	fmt.Print("This deletes all medications, dose history and settings. Type 'reset' to confirm: ")
	reader := bufio.NewReader(os.Stdin)
	response, _ := reader.ReadString('\n')
	if strings.TrimSpace(response) != "reset" {
		fmt.Println("Aborted.")
		return nil
	}

	if err := a.Reset(context.Background()); err != nil {
		return err
	}
	fmt.Println("All data reset.")
	return nil
}

// resolveMedication finds a medication by exact id or unique name prefix.
func resolveMedication(a *app.App, key string) (*medication.Medication, error) {
	if med, err := a.Registry.Get(key); err == nil {
		return med, nil
	}

	meds, err := a.Registry.List()
	if err != nil {
		return nil, err
	}
	var matches []*medication.Medication
	lower := strings.ToLower(key)
	for i := range meds {
		if strings.HasPrefix(strings.ToLower(meds[i].Name), lower) {
			matches = append(matches, &meds[i])
		}
	}
	switch len(matches) {
	case 1:
		return matches[0], nil
	case 0:
		return nil, apperrors.NotFound("medication", key)
	default:
		names := make([]string, 0, len(matches))
		for _, m := range matches {
			names = append(names, m.Name)
		}
		return nil, fmt.Errorf("ambiguous name %q matches: %s", key, strings.Join(names, ", "))
	}
}

func requirePin(a *app.App) error {
	set, err := a.Auth.IsSet()
	if err != nil {
		return err
	}
	if !set {
		return nil
	}
	pin, err := readPin("Device PIN: ")
	if err != nil {
		return err
	}
	return a.Auth.Verify(pin)
}

func readPin(prompt string) (string, error) {
	fmt.Print(prompt)
	if term.IsTerminal(int(os.Stdin.Fd())) {
		raw, err := term.ReadPassword(int(os.Stdin.Fd()))
		fmt.Println()
		if err != nil {
			return "", err
		}
		return string(raw), nil
	}
	reader := bufio.NewReader(os.Stdin)
	line, err := reader.ReadString('\n')
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

// PrintHelp prints subcommand usage.
func PrintHelp() {
	fmt.Println(`dosewise - medication scheduling and adherence tracker

Usage:
  dosewise serve              Run the local HTTP API and reminder engine
  dosewise add [flags]        Add a medication
  dosewise list               List medications and supply
  dosewise take <med>         Record a dose (use -skipped to log a skip)
  dosewise progress [-date]   Show adherence for a day
  dosewise refill <med>       Record a refill
  dosewise pin [set|clear]    Manage the device PIN
  dosewise reset              Delete all data
  dosewise version            Print version

Global flags:
  -config <path>   Config file (default <data>/dosewise.yaml)
  -data <path>     Data directory (default ~/.dosewise)`)
}

// FormatDuration renders a duration in days for display.
func FormatDuration(days int) string {
	if days == medication.DurationOngoing {
		return "ongoing"
	}
	return strconv.Itoa(days) + " days"
}
