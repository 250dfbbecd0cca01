package cli

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/lab427/ferry/internal/history"
)

// confirm asks a yes/no question on stdin. Anything but "y"/"yes" is no.
func confirm(question string) (bool, error) {
	fmt.Printf("%s [y/N]: ", question)
	reader := bufio.NewReader(os.Stdin)
	input, err := reader.ReadString('\n')
	if err != nil {
		return false, err
	}
	switch strings.ToLower(strings.TrimSpace(input)) {
	case "y", "yes":
		return true, nil
	}
	return false, nil
}

// closeHistory closes a possibly-nil store.
func closeHistory(store *history.Store) {
	if store != nil {
		store.Close()
	}
}
