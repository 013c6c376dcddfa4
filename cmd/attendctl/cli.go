package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"syscall"
	"time"

	"github.com/gosuri/uitable"
	"golang.org/x/term"

	"attendclient/internal/apiclient"
	"attendclient/internal/attendance"
	"attendclient/internal/auth"
	"attendclient/internal/geo"
	"attendclient/internal/journal"
	"attendclient/internal/model"
	"attendclient/internal/report"
)

var (
	readPasswordFunc = term.ReadPassword // mockable

	errHelp = errors.New("help provided")
)

type commandLine struct {
	api     *apiclient.Client
	auth    *auth.Store
	ctrl    *attendance.Controller
	locator *geo.Acquirer
	journal *journal.Repository
	loc     *time.Location
	out     io.Writer
}

func (cli *commandLine) printUsage() {
	fmt.Fprintln(cli.out, "Usage:")
	fmt.Fprintln(cli.out, "  login -id USER_ID                           - sign in, the PIN is prompted next")
	fmt.Fprintln(cli.out, "  logout                                      - sign out and forget the login")
	fmt.Fprintln(cli.out, "  whoami                                      - show the signed in user")
	fmt.Fprintln(cli.out, "  courses [-q QUERY] [-offset N] [-limit N]   - list courses")
	fmt.Fprintln(cli.out, "  sessions -course ID                         - list the sessions of a course")
	fmt.Fprintln(cli.out, "  records -session ID [-format F] [-out FILE] - show or export attendance records")
	fmt.Fprintln(cli.out, "  scores -course ID [-q QUERY] [-format F] [-out FILE] - show or export attendance scores")
	fmt.Fprintln(cli.out, "  mark -course ID -session ID                 - capture a face and mark attendance")
	fmt.Fprintln(cli.out, "  verify -session ID                          - check this host's position against a session")
	fmt.Fprintln(cli.out, "  journal [-session ID] [-limit N]            - list recent capture attempts")
	fmt.Fprintln(cli.out, "  status                                      - show the remote system status")
}

func (cli *commandLine) run(ctx context.Context, args []string) error {
	if len(args) < 2 {
		cli.printUsage()
		return errHelp
	}

	loginCmd := flag.NewFlagSet("login", flag.ContinueOnError)
	loginID := loginCmd.String("id", "", "Student or staff id. The PIN will be prompted next.")

	coursesCmd := flag.NewFlagSet("courses", flag.ContinueOnError)
	coursesQuery := coursesCmd.String("q", "", "Search query.")
	coursesOffset := coursesCmd.Int("offset", 0, "Number of courses to skip.")
	coursesLimit := coursesCmd.Int("limit", 0, "Page size; 0 lists every course.")

	sessionsCmd := flag.NewFlagSet("sessions", flag.ContinueOnError)
	sessionsCourse := sessionsCmd.String("course", "", "Course id.")

	recordsCmd := flag.NewFlagSet("records", flag.ContinueOnError)
	recordsSession := recordsCmd.String("session", "", "Session id.")
	recordsFormat := recordsCmd.String("format", "txt", "Output format: txt, csv, xlsx or pdf.")
	recordsOut := recordsCmd.String("out", "", "Output file; defaults to attendance_{session}_{date}.{ext} for files.")

	scoresCmd := flag.NewFlagSet("scores", flag.ContinueOnError)
	scoresCourse := scoresCmd.String("course", "", "Course id.")
	scoresQuery := scoresCmd.String("q", "", "Filter by name, id or email.")
	scoresFormat := scoresCmd.String("format", "txt", "Output format: txt, csv, xlsx or pdf.")
	scoresOut := scoresCmd.String("out", "", "Output file; defaults to attendance_scores_{code}.{ext} for files.")

	markCmd := flag.NewFlagSet("mark", flag.ContinueOnError)
	markCourse := markCmd.String("course", "", "Course id.")
	markSession := markCmd.String("session", "", "Session id.")

	verifyCmd := flag.NewFlagSet("verify", flag.ContinueOnError)
	verifySession := verifyCmd.String("session", "", "Session id.")

	journalCmd := flag.NewFlagSet("journal", flag.ContinueOnError)
	journalSession := journalCmd.String("session", "", "Only attempts for this session.")
	journalLimit := journalCmd.Int("limit", 20, "Number of entries.")

	for _, fs := range []*flag.FlagSet{loginCmd, coursesCmd, sessionsCmd, recordsCmd, scoresCmd, markCmd, verifyCmd, journalCmd} {
		fs.SetOutput(cli.out)
	}

	switch args[1] {
	case "login":
		if err := loginCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *loginID == "" {
			loginCmd.Usage()
			return errHelp
		}
		fmt.Fprint(cli.out, "Enter PIN:")
		pin, err := readPasswordFunc(int(syscall.Stdin))
		fmt.Fprintln(cli.out)
		if err != nil {
			return err
		}
		if len(pin) == 0 {
			loginCmd.Usage()
			return errHelp
		}
		return cli.login(ctx, *loginID, string(pin))
	case "logout":
		return cli.logout(ctx)
	case "whoami":
		return cli.whoami(ctx)
	case "courses":
		if err := coursesCmd.Parse(args[2:]); err != nil {
			return err
		}
		return cli.courses(ctx, *coursesQuery, *coursesOffset, *coursesLimit)
	case "sessions":
		if err := sessionsCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *sessionsCourse == "" {
			sessionsCmd.Usage()
			return errHelp
		}
		return cli.sessions(ctx, *sessionsCourse)
	case "records":
		if err := recordsCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *recordsSession == "" {
			recordsCmd.Usage()
			return errHelp
		}
		return cli.records(ctx, *recordsSession, *recordsFormat, *recordsOut)
	case "scores":
		if err := scoresCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *scoresCourse == "" {
			scoresCmd.Usage()
			return errHelp
		}
		return cli.scores(ctx, *scoresCourse, *scoresQuery, *scoresFormat, *scoresOut)
	case "mark":
		if err := markCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *markCourse == "" || *markSession == "" {
			markCmd.Usage()
			return errHelp
		}
		return cli.mark(ctx, *markCourse, *markSession)
	case "verify":
		if err := verifyCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *verifySession == "" {
			verifyCmd.Usage()
			return errHelp
		}
		return cli.verify(ctx, *verifySession)
	case "journal":
		if err := journalCmd.Parse(args[2:]); err != nil {
			return err
		}
		return cli.listJournal(ctx, *journalSession, *journalLimit)
	case "status":
		return cli.status(ctx)
	default:
		cli.printUsage()
		return errHelp
	}
}

func (cli *commandLine) login(ctx context.Context, id, pin string) error {
	sess, err := cli.api.Login(ctx, id, pin)
	if err != nil {
		return err
	}
	if err := cli.auth.Save(ctx, sess); err != nil {
		return err
	}
	fmt.Fprintf(cli.out, "Signed in as %s (%s)\n", sess.User.FullName, sess.User.Role)
	return nil
}

func (cli *commandLine) logout(ctx context.Context) error {
	if err := cli.api.Logout(ctx); err != nil {
		fmt.Fprintf(cli.out, "remote logout failed: %v\n", err)
	}
	if err := cli.auth.Clear(ctx); err != nil {
		return err
	}
	fmt.Fprintln(cli.out, "Signed out")
	return nil
}

func (cli *commandLine) whoami(ctx context.Context) error {
	st, err := cli.auth.Load(ctx)
	if err != nil {
		return err
	}
	if !st.Authenticated || st.User == nil {
		return errors.New("not signed in, run: login -id USER_ID")
	}
	fmt.Fprintf(cli.out, "%s (%s) %s\n", st.User.FullName, st.User.UserIdentifier, st.Role)
	return nil
}

func (cli *commandLine) courses(ctx context.Context, query string, offset, limit int) error {
	var (
		list []model.Course
		err  error
	)
	if query == "" && offset == 0 && limit == 0 {
		list, err = cli.api.ListCourses(ctx)
	} else {
		if limit == 0 {
			limit = 10
		}
		list, err = cli.api.SearchCourses(ctx, offset, limit, query)
	}
	if err != nil {
		return err
	}
	tbl := uitable.New()
	tbl.MaxColWidth = 40
	tbl.AddRow("ID", "CODE", "NAME", "SEMESTER", "YEAR", "STATUS", "ENROLLMENT")
	for _, c := range list {
		enrollment := "closed"
		if c.EnrollmentOpen {
			enrollment = "open"
		}
		tbl.AddRow(c.ID, c.Code, c.Name, c.Semester, c.AcademicYear, c.Status, enrollment)
	}
	fmt.Fprintln(cli.out, tbl)
	return nil
}

func (cli *commandLine) sessions(ctx context.Context, courseID string) error {
	list, err := cli.api.ListSessionsByCourse(ctx, courseID)
	if err != nil {
		return err
	}
	tbl := uitable.New()
	tbl.MaxColWidth = 40
	tbl.AddRow("ID", "TOPIC", "SCHEDULED", "DURATION", "STATUS", "TYPE", "LOCATION")
	for _, s := range list {
		tbl.AddRow(s.ID, s.Topic, s.ScheduledAt.In(cli.loc).Format(report.CheckInLayout),
			fmt.Sprintf("%d min", s.DurationMinutes), s.Status, s.AttendanceType, s.Location.Name)
	}
	fmt.Fprintln(cli.out, tbl)
	return nil
}

func (cli *commandLine) records(ctx context.Context, sessionID, format, out string) error {
	f, err := report.ParseFormat(format)
	if err != nil {
		return err
	}
	list, err := cli.api.SessionAttendance(ctx, sessionID)
	if err != nil {
		return err
	}
	name := report.Filename(sessionID, f, time.Now().In(cli.loc))
	return cli.write(report.AttendanceTable(list, cli.loc), f, out, name)
}

func (cli *commandLine) scores(ctx context.Context, courseID, query, format, out string) error {
	f, err := report.ParseFormat(format)
	if err != nil {
		return err
	}
	sheet, err := cli.api.CourseScores(ctx, courseID)
	if err != nil {
		return err
	}
	return cli.write(report.ScoresTable(sheet, query), f, out, report.ScoresFilename(sheet.CourseCode, f))
}

// write prints text tables and saves the other formats to a file.
func (cli *commandLine) write(t report.Table, f report.Format, out, fallback string) error {
	if f == report.FormatText && out == "" {
		_, err := io.WriteString(cli.out, report.Text(t))
		return err
	}
	if out == "" {
		out = fallback
	}
	file, err := os.Create(out)
	if err != nil {
		return err
	}
	if err := report.Export(file, t, f); err != nil {
		_ = file.Close()
		return err
	}
	if err := file.Close(); err != nil {
		return err
	}
	fmt.Fprintf(cli.out, "Wrote %d rows to %s\n", t.Len(), out)
	return nil
}

func (cli *commandLine) mark(ctx context.Context, courseID, sessionID string) error {
	if err := cli.ctrl.SelectCourse(ctx, courseID); err != nil {
		return err
	}
	if err := cli.ctrl.SelectSession(ctx, sessionID); err != nil {
		return err
	}
	st := cli.ctrl.Snapshot()
	if !st.CameraAvailable() {
		return fmt.Errorf("session %s is not accepting face captures", sessionID)
	}
	if st.LocationError != "" {
		fmt.Fprintln(cli.out, st.LocationError)
	}
	if err := cli.ctrl.StartCamera(ctx); err != nil {
		if msg := cli.ctrl.Snapshot().CaptureError; msg != "" {
			return errors.New(msg)
		}
		return err
	}
	fmt.Fprintln(cli.out, attendance.MsgProcessing)
	res, err := cli.ctrl.Submit(ctx)
	if err != nil {
		var serr *attendance.SubmitError
		if errors.As(err, &serr) {
			return errors.New(serr.Message)
		}
		return err
	}
	fmt.Fprintln(cli.out, res.Message)
	fmt.Fprint(cli.out, report.Text(report.AttendanceTable(cli.ctrl.Snapshot().Records, cli.loc)))
	return nil
}

func (cli *commandLine) verify(ctx context.Context, sessionID string) error {
	coords, err := cli.locator.Acquire(ctx)
	if err != nil {
		return errors.New(geo.FailureMessage)
	}
	check, err := cli.api.VerifyLocation(ctx, sessionID, coords)
	if err != nil {
		return err
	}
	line := fmt.Sprintf("Location %s", strings.ReplaceAll(string(check.Status), "_", " "))
	if check.Distance != nil {
		line += fmt.Sprintf(" (%.0f m from the session)", *check.Distance)
	}
	fmt.Fprintln(cli.out, line)
	return nil
}

func (cli *commandLine) listJournal(ctx context.Context, sessionID string, limit int) error {
	if cli.journal == nil {
		return errors.New("journal database is not configured")
	}
	entries, err := cli.journal.List(ctx, journal.Filter{SessionID: sessionID, Limit: limit})
	if err != nil {
		return err
	}
	tbl := uitable.New()
	tbl.MaxColWidth = 60
	tbl.AddRow("STARTED", "COURSE", "SESSION", "OUTCOME", "ELAPSED", "MESSAGE")
	for _, e := range entries {
		tbl.AddRow(e.StartedAt.In(cli.loc).Format(time.DateTime), e.CourseID, e.SessionID, e.Outcome,
			(time.Duration(e.Elapsed) * time.Millisecond).String(), e.Message)
	}
	fmt.Fprintln(cli.out, tbl)
	return nil
}

func (cli *commandLine) status(ctx context.Context) error {
	services, err := cli.api.SystemStatus(ctx)
	if err != nil {
		return err
	}
	tbl := uitable.New()
	tbl.AddRow("SERVICE", "STATUS")
	for _, s := range services {
		tbl.AddRow(s.Name, s.Status)
	}
	fmt.Fprintln(cli.out, tbl)
	return nil
}
