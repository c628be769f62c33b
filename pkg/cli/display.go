package cli

import (
	"github.com/pterm/pterm"
	"github.com/xyproto/env/v2"
)

var (
	successStyleBG = pterm.NewStyle(pterm.BgLightGreen, pterm.FgBlack)
	successColorFG = pterm.FgLightGreen
	errorStyleBG   = pterm.NewStyle(pterm.BgRed, pterm.FgWhite)
	errorColorFG   = pterm.FgRed
)

func init() {
	if env.Bool("NO_COLOR") {
		pterm.DisableColor()
	}
}

// PrintError prints a tagged error to the console.
func PrintError(tag string, err error) {
	errorStyleBG.Print(tag)
	errorColorFG.Println(" " + err.Error())
}

// PrintSuccess prints a tagged success message.
func PrintSuccess(tag, msg string) {
	successStyleBG.Print(tag)
	successColorFG.Println(" " + msg)
}
