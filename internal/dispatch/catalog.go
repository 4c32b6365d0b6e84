package dispatch

// CommandSpec describes one entry of the known command catalog.  Write
// classification decides whether the caller needs a write or a read
// scope on the target SIM's fleet.
type CommandSpec struct {
	Name        string
	Write       bool
	Description string
}

// CommandCustom carries operator-supplied text: the text is both the
// wire command and the payload.  All other catalog commands use the
// command name itself as payload (device firmware convention).
const CommandCustom = "custom"

// maxCustomTextLen bounds the payload of a custom command, matching the
// SMS-style transport the provider uses.
const maxCustomTextLen = 160

// catalog is the set of commands the dispatcher accepts.
var catalog = map[string]CommandSpec{
	"ping":       {Name: "ping", Write: false, Description: "connectivity probe, device echoes back"},
	"status":     {Name: "status", Write: false, Description: "report current device status"},
	"info":       {Name: "info", Write: false, Description: "report firmware and modem details"},
	"reset":      {Name: "reset", Write: true, Description: "soft-reset the device modem"},
	"reboot":     {Name: "reboot", Write: true, Description: "full device reboot"},
	"deactivate": {Name: "deactivate", Write: true, Description: "take the device offline"},
	CommandCustom: {Name: CommandCustom, Write: true,
		Description: "send operator-supplied text verbatim"},
}

// LookupCommand returns the catalog entry for name.
func LookupCommand(name string) (CommandSpec, bool) {
	spec, ok := catalog[name]
	return spec, ok
}

// payloadFor resolves the wire payload: custom commands send the
// operator text, everything else sends the command name.
func payloadFor(command, text string) string {
	if command == CommandCustom {
		return text
	}
	return command
}
