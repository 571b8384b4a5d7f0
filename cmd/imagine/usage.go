package main

import "strings"

// usageSections follows the synopsis in every help screen. Cobra fills it
// from the command tree.
const usageSections = `
{{if .HasAvailableSubCommands}}Commands:
{{range .Commands}}{{if (or .IsAvailableCommand (eq .Name "help"))}}  {{rpad .Name .NamePadding }} {{.Short}}
{{end}}{{end}}{{end}}
{{if .HasExample}}Examples:
{{.Example}}

{{end}}{{if .HasAvailableLocalFlags}}Flags:
{{.LocalFlags.FlagUsages | trimTrailingWhitespaces}}
{{end}}
{{if .HasAvailableInheritedFlags}}Global Flags:
{{.InheritedFlags.FlagUsages | trimTrailingWhitespaces}}
{{end}}
{{if .HasAvailableSubCommands}}Use "{{.CommandPath}} [command] --help" for more information about a command.
{{end}}`

// usageTemplate builds a help template whose synopsis lists lines before
// the generated use line.
func usageTemplate(lines ...string) string {
	var b strings.Builder
	b.WriteString("Usage:\n")
	for _, l := range lines {
		b.WriteString("  " + l + "\n")
	}
	b.WriteString("  {{.UseLine}}\n")
	return b.String() + usageSections
}

var (
	subcommandUsageTemplate = usageTemplate()
	rootUsageTemplate       = usageTemplate(`imagine "<prompt>" [flags]`)
	envUsageTemplate        = usageTemplate("{{.CommandPath}} [command]")
)
