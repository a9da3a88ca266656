// linksh is an interactive console for a uartlink host. It connects
// to the far end of the serial link and exchanges protocol commands,
// with history and line editing.
//
// Usage:
//
//	linksh [-device /dev/ttyUSB1] [-baud 115200] [command...]
//
// With no command arguments an interactive shell starts; otherwise the
// given command runs once and linksh exits.
package main

import (
	"bufio"
	"flag"
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	"github.com/abiosoft/ishell"
	"github.com/tarm/serial"
)

const (
	shellKey          = "$console"
	unconnectedPrompt = "[none] > "
	responseTimeout   = 2 * time.Second
)

// Console holds the shell and the current link connection.
type Console struct {
	Shell *ishell.Shell

	port   *serial.Port
	reader *bufio.Reader
	device string
}

var commands = []*ishell.Cmd{
	&connectCmd,
	&disconnectCmd,
	&sendCmd,
	&pingCmd,
	&statusCmd,
	&watchCmd,
}

func newConsole() *Console {
	c := &Console{Shell: ishell.New()}
	c.Shell.Set(shellKey, c)
	c.Shell.SetPrompt(unconnectedPrompt)
	for _, cmd := range commands {
		c.Shell.AddCmd(cmd)
	}
	return c
}

// consoleFrom gets the Console from an ishell context.
func consoleFrom(c *ishell.Context) *Console {
	return c.Get(shellKey).(*Console)
}

// mustBeConnected wraps a command func that requires a connection.
func mustBeConnected(fn func(c *ishell.Context)) func(c *ishell.Context) {
	return func(c *ishell.Context) {
		if consoleFrom(c).port == nil {
			c.Err(fmt.Errorf("not connected (use: connect DEVICE [BAUD])"))
			return
		}
		fn(c)
	}
}

// Connect opens the serial device and updates the prompt.
func (con *Console) Connect(device string, baud int) error {
	port, err := serial.OpenPort(&serial.Config{
		Name:        device,
		Baud:        baud,
		ReadTimeout: responseTimeout,
	})
	if err != nil {
		return err
	}

	con.Disconnect()
	con.port = port
	con.reader = bufio.NewReader(port)
	con.device = device
	con.Shell.SetPrompt(fmt.Sprintf("%s > ", device))
	return nil
}

// Disconnect closes the current connection, if any.
func (con *Console) Disconnect() {
	if con.port != nil {
		con.port.Close()
		con.port = nil
		con.reader = nil
		con.Shell.SetPrompt(unconnectedPrompt)
	}
}

// Exchange sends one line and returns the response line, trimmed.
func (con *Console) Exchange(line string) (string, error) {
	if _, err := con.port.Write([]byte(line + "\n")); err != nil {
		return "", fmt.Errorf("write: %w", err)
	}
	resp, err := con.reader.ReadString('\n')
	if err != nil {
		return "", fmt.Errorf("read: %w", err)
	}
	return strings.TrimRight(resp, "\r\n"), nil
}

var (
	connectCmd = ishell.Cmd{
		Name:    "connect",
		Aliases: []string{"c"},
		Help:    "DEVICE [BAUD]",
		Func: func(c *ishell.Context) {
			if len(c.Args) < 1 {
				c.Err(fmt.Errorf("usage: connect DEVICE [BAUD]"))
				return
			}
			baud := 115200
			if len(c.Args) >= 2 {
				b, err := strconv.Atoi(c.Args[1])
				if err != nil {
					c.Err(fmt.Errorf("bad baud rate %q", c.Args[1]))
					return
				}
				baud = b
			}
			if err := consoleFrom(c).Connect(c.Args[0], baud); err != nil {
				c.Err(err)
			}
		},
	}

	disconnectCmd = ishell.Cmd{
		Name:    "disconnect",
		Aliases: []string{"d"},
		Help:    "",
		Func: func(c *ishell.Context) {
			consoleFrom(c).Disconnect()
		},
	}

	// sendCmd sends an arbitrary line and prints the response.
	sendCmd = ishell.Cmd{
		Name:    "send",
		Aliases: []string{"s"},
		Help:    "TEXT",
		Func: mustBeConnected(func(c *ishell.Context) {
			if len(c.Args) == 0 {
				c.Err(fmt.Errorf("usage: send TEXT"))
				return
			}
			resp, err := consoleFrom(c).Exchange(strings.Join(c.Args, " "))
			if err != nil {
				c.Err(err)
				return
			}
			c.Println(resp)
		}),
	}

	pingCmd = ishell.Cmd{
		Name: "ping",
		Help: "round-trip check",
		Func: mustBeConnected(func(c *ishell.Context) {
			start := time.Now()
			resp, err := consoleFrom(c).Exchange("PING")
			if err != nil {
				c.Err(err)
				return
			}
			c.Printf("%s (%v)\n", resp, time.Since(start).Round(time.Microsecond))
		}),
	}

	statusCmd = ishell.Cmd{
		Name: "status",
		Help: "link fault counters",
		Func: mustBeConnected(func(c *ishell.Context) {
			con := consoleFrom(c)
			for _, cmd := range []string{"VERSION", "UPTIME", "STATUS"} {
				resp, err := con.Exchange(cmd)
				if err != nil {
					c.Err(err)
					return
				}
				c.Println(resp)
			}
		}),
	}

	// watchCmd polls STATUS once a second until interrupted.
	watchCmd = ishell.Cmd{
		Name: "watch",
		Help: "[SECONDS] poll status",
		Func: mustBeConnected(func(c *ishell.Context) {
			seconds := 10
			if len(c.Args) >= 1 {
				if s, err := strconv.Atoi(c.Args[0]); err == nil {
					seconds = s
				}
			}
			con := consoleFrom(c)
			for i := 0; i < seconds; i++ {
				resp, err := con.Exchange("STATUS")
				if err != nil {
					c.Err(err)
					return
				}
				c.Println(resp)
				time.Sleep(time.Second)
			}
		}),
	}
)

func main() {
	device := flag.String("device", "", "Serial device to connect on startup")
	baud := flag.Int("baud", 115200, "Baud rate")
	flag.Parse()

	con := newConsole()
	defer con.Disconnect()

	if *device != "" {
		con.Shell.Printf("Connecting %s ...\n", *device)
		if err := con.Connect(*device, *baud); err != nil {
			log.Fatalf("connect %q failed: %v", *device, err)
		}
	}

	if args := flag.Args(); len(args) > 0 {
		if err := con.Shell.Process(args...); err != nil {
			log.Fatalln(err)
		}
		return
	}

	con.Shell.Println("uartlink console (help for commands)")
	con.Shell.Run()
}
