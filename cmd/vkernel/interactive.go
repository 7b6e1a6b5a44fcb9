package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"

	"github.com/loredeck/vkernel/errors"
	"github.com/loredeck/vkernel/fd"
	"github.com/loredeck/vkernel/kernel"
	"github.com/loredeck/vkernel/mq"
	"github.com/loredeck/vkernel/vfs"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 1)

	pathStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#87CEEB"))

	dirStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#98FB98"))

	devStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFD700"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF6B6B"))

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#666666"))
)

// maxScrollback bounds the shell's output history.
const maxScrollback = 200

type shellModel struct {
	k     *kernel.Kernel
	input textinput.Model
	lines []string
}

func newShellModel(k *kernel.Kernel) *shellModel {
	ti := textinput.New()
	ti.Prompt = "vk> "
	ti.Width = 72
	ti.Focus()
	return &shellModel{
		k:     k,
		input: ti,
		lines: []string{helpStyle.Render("type 'help' for commands")},
	}
}

func (m *shellModel) Init() tea.Cmd {
	return textinput.Blink
}

func (m *shellModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "ctrl+d":
			return m, tea.Quit
		case "enter":
			line := strings.TrimSpace(m.input.Value())
			m.input.SetValue("")
			if line == "" {
				return m, nil
			}
			if line == "quit" || line == "exit" {
				return m, tea.Quit
			}
			m.echo("vk> " + line)
			m.run(line)
			if len(m.lines) > maxScrollback {
				m.lines = m.lines[len(m.lines)-maxScrollback:]
			}
			return m, nil
		}
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m *shellModel) echo(line string) {
	m.lines = append(m.lines, line)
}

func (m *shellModel) fail(err error) {
	msg := err.Error()
	if code := errors.CodeOf(err); code != "" {
		msg = fmt.Sprintf("%s (errno %d)", msg, code.Errno())
	}
	m.echo(errorStyle.Render(msg))
}

func (m *shellModel) run(line string) {
	args := strings.Fields(line)
	cmd, rest := args[0], args[1:]

	switch cmd {
	case "help":
		m.echo("ls [path]            list a directory")
		m.echo("cat <path>           print a file or device read")
		m.echo("write <path> <text>  write text (creates the file)")
		m.echo("mkdir <path>         create a directory (with parents)")
		m.echo("rm <path>            unlink a file or device node")
		m.echo("rmdir <path>         remove a directory recursively")
		m.echo("stat <path>          show an entry's metadata")
		m.echo("mounts               show the mount table")
		m.echo("queues               list message queues")
		m.echo("mkqueue <path>       create a queue")
		m.echo("send <q> <prio> <t>  enqueue text at a priority")
		m.echo("recv <q>             dequeue the next message")
		m.echo("plugins              list registered plugins")
		m.echo("fds                  show open descriptors")
		m.echo("quit                 leave the shell")

	case "ls":
		path := "/"
		if len(rest) > 0 {
			path = rest[0]
		}
		ents, err := m.k.Readdir(path)
		if err != nil {
			m.fail(err)
			return
		}
		if len(ents) == 0 {
			m.echo(helpStyle.Render("(empty)"))
			return
		}
		for _, ent := range ents {
			m.echo(m.formatEntry(path, ent))
		}

	case "cat":
		if len(rest) != 1 {
			m.echo("usage: cat <path>")
			return
		}
		data, err := m.readAll(rest[0])
		if err != nil {
			m.fail(err)
			return
		}
		m.echo(strings.TrimRight(string(data), "\n"))

	case "write":
		if len(rest) < 2 {
			m.echo("usage: write <path> <text>")
			return
		}
		if err := m.writeAll(rest[0], strings.Join(rest[1:], " ")); err != nil {
			m.fail(err)
			return
		}
		m.echo("ok")

	case "mkdir":
		if len(rest) != 1 {
			m.echo("usage: mkdir <path>")
			return
		}
		if err := m.k.Mkdir(rest[0], true); err != nil {
			m.fail(err)
			return
		}
		m.echo("ok")

	case "rm":
		if len(rest) != 1 {
			m.echo("usage: rm <path>")
			return
		}
		if err := m.k.Unlink(rest[0]); err != nil {
			m.fail(err)
			return
		}
		m.echo("ok")

	case "rmdir":
		if len(rest) != 1 {
			m.echo("usage: rmdir <path>")
			return
		}
		if err := m.k.Rmdir(rest[0], true); err != nil {
			m.fail(err)
			return
		}
		m.echo("ok")

	case "stat":
		if len(rest) != 1 {
			m.echo("usage: stat <path>")
			return
		}
		st, ok := m.k.Stat(rest[0])
		if !ok {
			m.echo(errorStyle.Render("no such entry"))
			return
		}
		m.echo(fmt.Sprintf("ino %d  %s  %s  perm %o  links %d",
			st.Ino, st.Type, humanize.IBytes(uint64(st.Size)), st.Perm, st.Links))
		m.echo(fmt.Sprintf("created %s  modified %s",
			st.CreatedAt.Format("2006-01-02 15:04:05"),
			st.ModifiedAt.Format("2006-01-02 15:04:05")))

	case "mounts":
		for _, mp := range m.k.Mounts() {
			m.echo(fmt.Sprintf("%s  %s v%s",
				devStyle.Render(fmt.Sprintf("%-16s", mp.Path)), mp.ID, mp.Version))
		}

	case "queues":
		qs := m.k.Queues()
		if len(qs) == 0 {
			m.echo(helpStyle.Render("(no queues)"))
			return
		}
		for _, q := range qs {
			depth, err := m.k.QueueDepth(q)
			if err != nil {
				m.fail(err)
				continue
			}
			m.echo(fmt.Sprintf("%s  depth %d", pathStyle.Render(q), depth))
		}

	case "mkqueue":
		if len(rest) != 1 {
			m.echo("usage: mkqueue <path>")
			return
		}
		if err := m.k.CreateQueue(rest[0], mq.Attributes{}); err != nil {
			m.fail(err)
			return
		}
		m.echo("ok")

	case "send":
		if len(rest) < 3 {
			m.echo("usage: send <queue> <priority> <text>")
			return
		}
		prio, err := strconv.Atoi(rest[1])
		if err != nil {
			m.echo("priority must be a number")
			return
		}
		id, err := m.k.Send(rest[0], mq.Message{
			Priority: prio,
			Payload:  []byte(strings.Join(rest[2:], " ")),
		})
		if err != nil {
			m.fail(err)
			return
		}
		m.echo("sent " + id.String())

	case "recv":
		if len(rest) != 1 {
			m.echo("usage: recv <queue>")
			return
		}
		msg, err := m.k.Receive(rest[0], nil)
		if err != nil {
			m.fail(err)
			return
		}
		m.echo(fmt.Sprintf("[prio %d] %s", msg.Priority, msg.Payload))

	case "plugins":
		ids := m.k.Plugins()
		if len(ids) == 0 {
			m.echo(helpStyle.Render("(no plugins)"))
			return
		}
		for _, id := range ids {
			m.echo(id)
		}

	case "fds":
		fds := m.k.OpenDescriptors()
		if len(fds) == 0 {
			m.echo(helpStyle.Render("(no open user descriptors)"))
			return
		}
		for _, n := range fds {
			m.echo(strconv.Itoa(n))
		}

	default:
		m.echo(errorStyle.Render("unknown command: " + cmd))
	}
}

// readAll and writeAll go through the descriptor surface like any
// other kernel client.
func (m *shellModel) readAll(path string) ([]byte, error) {
	fdnum, err := m.k.Open(path, fd.Read)
	if err != nil {
		return nil, err
	}
	defer func() { _ = m.k.Close(fdnum) }()
	return m.k.Read(fdnum)
}

func (m *shellModel) writeAll(path, text string) error {
	fdnum, err := m.k.Open(path, fd.Write|fd.Create)
	if err != nil {
		return err
	}
	defer func() { _ = m.k.Close(fdnum) }()
	return m.k.Write(fdnum, []byte(text))
}

func (m *shellModel) formatEntry(dir string, ent vfs.Dirent) string {
	name := ent.Name
	switch ent.Type {
	case vfs.TypeDirectory:
		return dirStyle.Render(name + "/")
	case vfs.TypeDevice:
		return devStyle.Render(name)
	default:
		size := ""
		if st, ok := m.k.Stat(vfs.Join(dir, ent.Name)); ok {
			size = "  " + humanize.IBytes(uint64(st.Size))
		}
		return name + helpStyle.Render(size)
	}
}

func (m *shellModel) View() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("vkernel shell"))
	b.WriteString("\n\n")
	for _, line := range m.lines {
		b.WriteString(line)
		b.WriteString("\n")
	}
	b.WriteString("\n")
	b.WriteString(m.input.View())
	b.WriteString("\n")
	b.WriteString(helpStyle.Render("enter run • ctrl+c quit"))
	return b.String()
}

func runInteractive(k *kernel.Kernel) error {
	p := tea.NewProgram(newShellModel(k), tea.WithAltScreen())
	_, err := p.Run()
	return err
}
