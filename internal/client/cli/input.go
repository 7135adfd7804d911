package cli

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"
)

var errPasswordMismatch = errors.New("passwords do not match")

// readPassword is swapped out in tests; there is no terminal under go test.
var readPassword = term.ReadPassword

// GetSimpleText writes prompt to w and returns the next trimmed line from
// reader. A final line without a trailing newline is accepted.
func GetSimpleText(reader *bufio.Reader, prompt string, w io.Writer) (string, error) {
	if _, err := fmt.Fprint(w, prompt+"\n> "); err != nil {
		return "", err
	}
	line, err := reader.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

// GetPassword reads a password from stdin with echo disabled.
func GetPassword(w io.Writer, prompt string) ([]byte, error) {
	if _, err := fmt.Fprint(w, prompt+": "); err != nil {
		return nil, err
	}
	pw, err := readPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(w)
	return pw, err
}

// GetNewPassword asks for a password twice and fails when the entries differ.
func GetNewPassword(w io.Writer) ([]byte, error) {
	pw, err := GetPassword(w, "Enter password")
	if err != nil {
		return nil, err
	}
	again, err := GetPassword(w, "Repeat password")
	defer wipe(again)
	if err != nil {
		wipe(pw)
		return nil, err
	}
	if !bytes.Equal(pw, again) {
		wipe(pw)
		return nil, errPasswordMismatch
	}
	return pw, nil
}

func wipe(b []byte) {
	clear(b)
}
