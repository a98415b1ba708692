package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"facebox/biometric"
	"facebox/config"
	"facebox/db"
	"facebox/internal"
	"facebox/internal/service"
	"facebox/pkg/security"
	"facebox/session"
	"facebox/store"

	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/term"
)

const (
	gray  = "\x1b[90m"
	reset = "\x1b[0m"
)

func main() {
	err := config.Setup()
	if err != nil {
		panic(err)
	}

	makeLogger()

	conn, err := db.New(viper.GetString("db.path"))
	if err != nil {
		// The store is the one thing we can't run without
		panic(err)
	}

	argon := security.NewArgon2ID()
	creds := store.NewCredentials(conn, argon)

	cams, rec := collaborators()

	deps := &internal.Deps{
		DB:      conn,
		Argon:   argon,
		Creds:   creds,
		Mailbox: store.NewMailbox(conn),
		Scanner: biometric.NewScanner(creds, cams, rec),
		Enroll: biometric.NewEnrollment(creds, cams, rec, service.NewTrainer(), biometric.EnrollConfig{
			Interval: time.Second / time.Duration(viper.GetInt("capture.fps")),
			Target:   viper.GetInt("capture.samples"),
			Timeout:  time.Duration(viper.GetInt("capture.timeout_seconds")) * time.Second,
		}),
	}

	deps.Uploads, err = service.NewUploads(viper.GetString("app.root"))
	if err != nil {
		panic(err)
	}

	runLoop(session.NewRouter(deps))
}

// runLoop is the thin screen router: it reads commands, dispatches to
// the session state machine and prints outcomes. All failures map to a
// short message, none are fatal.
func runLoop(r *session.Router) {
	ctx := context.Background()
	scanner := bufio.NewScanner(os.Stdin)

	fmt.Println("facebox - type 'help' for commands")

	for {
		fmt.Printf("[%s]> ", r.Stage())
		if !scanner.Scan() {
			r.Logout()
			return
		}

		parts := strings.Fields(scanner.Text())
		if len(parts) == 0 {
			continue
		}

		switch parts[0] {
		case "help":
			printHelp(r)
		case "register":
			doRegister(ctx, r, scanner)
		case "login":
			doLogin(r, scanner)
		case "facelogin":
			doFaceLogin(ctx, r)
		case "send":
			doSend(r, parts, scanner)
		case "sendfile":
			doSendFile(r, parts)
		case "inbox":
			doInbox(r)
		case "logout":
			r.Logout()
		case "exit", "quit":
			r.Logout()
			return
		default:
			fmt.Println("unknown command, type 'help'")
		}
	}
}

func printHelp(r *session.Router) {
	if r.Stage() == session.LoggedIn {
		fmt.Println("commands: send <user>, sendfile <user> <path>, inbox, logout, exit")
	} else {
		fmt.Println("commands: login, register, facelogin, exit")
	}
}

func doLogin(r *session.Router, scanner *bufio.Scanner) {
	username := prompt(scanner, "username")
	password := promptPassword("password")

	if err := r.Login(username, password); err != nil {
		fmt.Println(err)
		return
	}

	fmt.Printf("welcome, %s\n", r.User().Username)
}

func doRegister(ctx context.Context, r *session.Router, scanner *bufio.Scanner) {
	if err := r.BeginRegistration(); err != nil {
		fmt.Println(err)
		return
	}

	username := prompt(scanner, "username")
	password := promptPassword("password")
	confirm := promptPassword("confirm password")

	userID, err := r.Register(username, password, confirm)
	if err != nil {
		fmt.Println(err)
		r.Back()
		return
	}

	fmt.Println("account created, starting face enrollment (ctrl-c to skip)")

	if err := r.Enroll(ctx, userID); err != nil {
		fmt.Printf("enrollment failed: %s - log in with your password instead\n", err)
		r.CancelEnrollment()
		return
	}

	fmt.Printf("enrolled, welcome %s\n", r.User().Username)
}

func doFaceLogin(ctx context.Context, r *session.Router) {
	matched, err := r.BeginFaceLogin(ctx)
	if err != nil {
		fmt.Println(err)
		return
	}

	fmt.Println("look at the camera...")

	user := <-matched
	r.CompleteFaceLogin(user)

	if user == nil {
		fmt.Println("face login cancelled")
		return
	}

	fmt.Printf("welcome, %s\n", user.Username)
}

func doSend(r *session.Router, parts []string, scanner *bufio.Scanner) {
	if len(parts) < 2 {
		fmt.Println("usage: send <user>")
		return
	}

	fmt.Print("message: ")
	if !scanner.Scan() {
		return
	}

	if err := r.SendMessage(parts[1], scanner.Text()); err != nil {
		fmt.Println(err)
		return
	}

	fmt.Println("message sent")
}

func doSendFile(r *session.Router, parts []string) {
	if len(parts) < 3 {
		fmt.Println("usage: sendfile <user> <path>")
		return
	}

	if err := r.SendFile(parts[1], parts[2]); err != nil {
		fmt.Println(err)
		return
	}

	fmt.Println("image sent")
}

func doInbox(r *session.Router) {
	msgs, files, err := r.Inbox()
	if err != nil {
		fmt.Println(err)
		return
	}

	fmt.Println("messages:")
	for _, m := range msgs {
		fmt.Printf("  %s - %s: %s\n", m.SentAt.Format("2006-01-02 15:04"), m.Sender, m.Body)
	}

	fmt.Println("images:")
	for _, f := range files {
		fmt.Printf("  %s - %s sent %s\n", f.SentAt.Format("2006-01-02 15:04"), f.Sender, f.RelPath)
	}
}

func prompt(scanner *bufio.Scanner, label string) string {
	fmt.Printf("%s: ", label)
	if !scanner.Scan() {
		return ""
	}
	return strings.TrimSpace(scanner.Text())
}

func promptPassword(label string) string {
	fmt.Printf("%s: ", label)
	pw, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Println()
	if err != nil {
		return ""
	}
	return string(pw)
}

// collaborators returns the camera and recognizer implementations for
// this build. The stock build ships without a capture backend, so both
// face flows fail with a clear status while password flows keep working.
func collaborators() (biometric.CameraOpener, biometric.Recognizer) {
	return noCameraOpener{}, noRecognizer{}
}

type noCameraOpener struct{}

func (noCameraOpener) Open() (biometric.Camera, error) {
	return nil, errors.New("no capture backend in this build")
}

type noRecognizer struct{}

func (noRecognizer) ModelLoaded() bool                              { return false }
func (noRecognizer) DetectAndClassify(biometric.Frame) (uint, bool) { return 0, false }
func (noRecognizer) CaptureSample(uint, biometric.Frame) bool       { return false }

func makeLogger() {
	cfg := zap.NewDevelopmentConfig()
	cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	cfg.EncoderConfig.EncodeTime = func(t time.Time, pae zapcore.PrimitiveArrayEncoder) {
		pae.AppendString(gray + t.Format("15:04:05.000") + reset)
	}

	cfg.DisableStacktrace = true

	level, err := zapcore.ParseLevel(viper.GetString("app.log_level"))
	if err == nil {
		cfg.Level = zap.NewAtomicLevelAt(level)
	}

	log, _ := cfg.Build()
	zap.ReplaceGlobals(log)
}
