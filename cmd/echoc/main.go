// Command echoc runs an EchoC script to completion.
package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	echoc "github.com/CreitinGameplays/EchoC-sub000"
	"golang.org/x/term"
)

// ANSI color codes for stderr error output, grounded on the teacher's own
// cmd/paw/main.go errorPrintf/stderrSupportsColor helpers.
const (
	colorRed   = "\x1b[91m"
	colorReset = "\x1b[0m"
)

func stderrSupportsColor() bool {
	if _, exists := os.LookupEnv("NO_COLOR"); exists {
		return false
	}
	if os.Getenv("TERM") == "dumb" {
		return false
	}
	return term.IsTerminal(int(os.Stderr.Fd()))
}

func errorPrintf(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	if stderrSupportsColor() {
		fmt.Fprintf(os.Stderr, "%s%s%s", colorRed, msg, colorReset)
	} else {
		fmt.Fprint(os.Stderr, msg)
	}
}

func showUsage() {
	usage := `Usage: echoc [options] [script.echo]
       echoc [options] < input.echo
       cat script.echo | echoc [options]

Execute an EchoC script from a file, stdin, or pipe.

Options:
  -verbose       Enable verbose logging
  -watch         Watch loaded modules and invalidate the cache on edit
  -echo-home DIR Stdlib search root (overrides ECHOC_HOME)
  -echo-path DIRS Colon-separated extra module search roots (overrides ECHOC_PATH)

Environment Variables:
  ECHOC_HOME   Default stdlib search root
  ECHOC_PATH   Colon-separated list of extra module search roots

Exit codes:
  0  script ran to completion without an uncaught exception
  1  parse error, or an uncaught exception propagated out of the script
`
	fmt.Fprint(os.Stderr, usage)
}

func main() {
	verboseFlag := flag.Bool("verbose", false, "Enable verbose logging")
	watchFlag := flag.Bool("watch", false, "Watch loaded modules for changes")
	echoHomeFlag := flag.String("echo-home", "", "Stdlib search root (overrides ECHOC_HOME)")
	echoPathFlag := flag.String("echo-path", "", "Colon-separated extra module search roots (overrides ECHOC_PATH)")
	flag.Usage = showUsage
	flag.Parse()

	args := flag.Args()

	var scriptFile, source string
	if len(args) > 0 {
		scriptFile = args[0]
		content, err := os.ReadFile(scriptFile)
		if err != nil {
			errorPrintf("Error reading script file: %v\n", err)
			os.Exit(1)
		}
		source = string(content)
	} else {
		stdinInfo, _ := os.Stdin.Stat()
		isRedirected := stdinInfo != nil && (stdinInfo.Mode()&os.ModeCharDevice) == 0
		if !isRedirected {
			showUsage()
			os.Exit(1)
		}
		content, err := io.ReadAll(os.Stdin)
		if err != nil {
			errorPrintf("Error reading from stdin: %v\n", err)
			os.Exit(1)
		}
		source = string(content)
	}

	var scriptDir string
	if scriptFile != "" {
		if abs, err := filepath.Abs(scriptFile); err == nil {
			scriptDir = filepath.Dir(abs)
		}
	}
	proj := loadProjectConfig(scriptDir)

	echoHome := *echoHomeFlag
	if echoHome == "" {
		echoHome = proj.EchoHome
	}
	if echoHome == "" {
		echoHome = os.Getenv("ECHOC_HOME")
	}

	var echoPath []string
	switch {
	case *echoPathFlag != "":
		echoPath = strings.Split(*echoPathFlag, ":")
	case len(proj.EchoPath) > 0:
		echoPath = proj.EchoPath
	case os.Getenv("ECHOC_PATH") != "":
		echoPath = strings.Split(os.Getenv("ECHOC_PATH"), ":")
	}

	cfg := echoc.DefaultConfig()
	cfg.Verbose = *verboseFlag
	cfg.Watch = *watchFlag
	cfg.EchoHome = echoHome
	cfg.EchoPath = echoPath

	interp := echoc.NewInterpreter(&cfg)

	filename := scriptFile
	if filename == "" {
		filename = "<stdin>"
	}
	if err := interp.ExecuteSource(source, filename); err != nil {
		errorPrintf("%s\n", err.Error())
		os.Exit(1)
	}
	os.Exit(0)
}
