package tui

// Keys handled by the root model.
const (
	KeyTab      = "tab"
	KeyShiftTab = "shift+tab"
	KeyQuit     = "q"
	KeyCtrlC    = "ctrl+c"
	KeyEsc      = "esc"
	KeySettings = "s"
	KeyRefresh  = "r"
)

// Keys handled by the focused pane.
const (
	KeyUp    = "up"
	KeyDown  = "down"
	KeyJ     = "j"
	KeyK     = "k"
	KeyClear = "c"
)

// paneKeys jumps straight to a pane.
var paneKeys = map[string]PaneID{
	"1": PaneTasks,
	"2": PaneRepo,
	"3": PaneQueue,
}

// HelpView returns the help bar for the focused pane.
func HelpView(focused PaneID) string {
	hint := "1 tasks | 2 repo | 3 queue | tab: next"
	switch focused {
	case PaneTasks:
		hint += " | j/k: select | c: clear finished"
	case PaneRepo:
		hint += " | j/k: scroll | r: refresh"
	}
	return StyleHelp.Render(hint + " | s: settings | q: quit")
}
