package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"souschef/internal/domain"
	"souschef/internal/usecase"
)

var errQuit = errors.New("quit")

const helpText = `commands:
  next | prev              move the cooking step pointer
  finish                   leave cooking mode
  mute | unmute            toggle the microphone
  upload <file.pdf>        add a recipe to the cookbook
  clear                    remove every uploaded recipe
  video                    find a video for the current step
  timer-rm <id>            dismiss a timer
  qty <id> <n>             change a shopping item quantity (0 removes)
  item-rm <id>             remove a shopping item
  list-clear               empty the shopping list
  quit                     disconnect and exit`

type command struct {
	name string
	args []string
}

func parseCommand(line string) (command, bool) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return command{}, false
	}
	return command{name: strings.ToLower(fields[0]), args: fields[1:]}, true
}

// sessionDriver is the part of the controller the terminal drives.
type sessionDriver interface {
	NextStep(ctx context.Context) error
	PreviousStep(ctx context.Context) error
	FinishCooking() error
	SetMuted(ctx context.Context, muted bool) error
	Upload(ctx context.Context, filename string, content io.Reader) (usecase.UploadOutcome, error)
	ClearCookbook(ctx context.Context) (usecase.RPCResult, error)
	StepVideo(ctx context.Context) (domain.VideoResult, error)
	RemoveTimer(id string) error
	SetShoppingQuantity(id string, quantity int) error
	RemoveShoppingItem(id string) error
	ClearShoppingList() error
}

func execute(ctx context.Context, driver sessionDriver, out *printer, cmd command) error {
	switch cmd.name {
	case "next", "n":
		return driver.NextStep(ctx)
	case "prev", "previous", "p":
		return driver.PreviousStep(ctx)
	case "finish":
		return driver.FinishCooking()
	case "mute":
		return driver.SetMuted(ctx, true)
	case "unmute":
		return driver.SetMuted(ctx, false)
	case "upload":
		if len(cmd.args) != 1 {
			return errors.New("usage: upload <file.pdf>")
		}
		return uploadFile(ctx, driver, out, cmd.args[0])
	case "clear":
		result, err := driver.ClearCookbook(ctx)
		if err != nil {
			return err
		}
		out.Println(dimStyle.Render("cookbook clear: " + string(result.Outcome)))
		return nil
	case "video":
		result, err := driver.StepVideo(ctx)
		if err != nil {
			return err
		}
		if !result.Found {
			out.Println(dimStyle.Render("no video found for this step"))
			return nil
		}
		out.Println(fmt.Sprintf("%s https://www.youtube.com/watch?v=%s", labelStyle.Render(result.Video.Title), result.Video.VideoID))
		return nil
	case "timer-rm":
		if len(cmd.args) != 1 {
			return errors.New("usage: timer-rm <id>")
		}
		return driver.RemoveTimer(cmd.args[0])
	case "qty":
		if len(cmd.args) != 2 {
			return errors.New("usage: qty <id> <n>")
		}
		quantity, err := strconv.Atoi(cmd.args[1])
		if err != nil {
			return fmt.Errorf("invalid quantity %q", cmd.args[1])
		}
		return driver.SetShoppingQuantity(cmd.args[0], quantity)
	case "item-rm":
		if len(cmd.args) != 1 {
			return errors.New("usage: item-rm <id>")
		}
		return driver.RemoveShoppingItem(cmd.args[0])
	case "list-clear":
		return driver.ClearShoppingList()
	case "help", "?":
		out.Println(helpText)
		return nil
	case "quit", "exit", "q":
		return errQuit
	default:
		return fmt.Errorf("unknown command %q (try help)", cmd.name)
	}
}

func uploadFile(ctx context.Context, driver sessionDriver, out *printer, path string) error {
	file, err := os.Open(path)
	if err != nil {
		return err
	}
	defer file.Close()

	outcome, err := driver.Upload(ctx, filepath.Base(path), file)
	if err != nil {
		return err
	}
	out.Println(dimStyle.Render(fmt.Sprintf("uploaded %s (ingest: %s)", outcome.Filename, outcome.Reload.Outcome)))
	return nil
}
