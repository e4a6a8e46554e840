/*
Package deploy starts lifetile ranks on remote machines over ssh, or as local
processes.

Every drone in the configuration runs one rank, in list order. The binary and
a copy of the configuration are streamed over the ssh session, then the rank
is started in the background and the ssh connection is dropped.
*/
package deploy

import (
	"bytes"
	"fmt"
	"io"
	"net"
	"os"
	"os/exec"
	"path"
	"strconv"
	"strings"
	"time"

	"golang.org/x/crypto/ssh"

	"github.com/RylanYancey/game-of-life-mpi/configs"
	"github.com/RylanYancey/game-of-life-mpi/hlog"
)

// name of the binary and config in the remote directory
const (
	remoteBinary = "lifetile"
	remoteConfig = "config.json"
)

// Result of deploying one rank
type Result struct {
	Rank    int
	Address string
	Err     error
}

// ForDrones returns cfg set up for a tipc world with one rank per drone.
func ForDrones(cfg configs.Config) (configs.Config, error) {
	if len(cfg.Drones) == 0 {
		return cfg, fmt.Errorf("deploy: no drones configured")
	}
	cfg.Transport = "tipc"
	cfg.Hosts = make([]string, len(cfg.Drones))
	for rank, d := range cfg.Drones {
		cfg.Hosts[rank] = d.Address
	}
	return cfg, nil
}

// Remote deploys binary to every drone of cfg and starts the ranks. It waits
// at most timeout for the drones to report.
func Remote(cfg configs.Config, binary string, timeout time.Duration, log *hlog.Logger) ([]Result, error) {
	cfg, err := ForDrones(cfg)
	if err != nil {
		return nil, err
	}
	exe, err := os.ReadFile(binary)
	if err != nil {
		return nil, err
	}
	tmp, err := os.CreateTemp("", "lifetile-*.json")
	if err != nil {
		return nil, err
	}
	tmp.Close()
	defer os.Remove(tmp.Name())
	if err := configs.WriteConfig(tmp.Name(), cfg); err != nil {
		return nil, err
	}
	conf, err := os.ReadFile(tmp.Name())
	if err != nil {
		return nil, err
	}

	resChan := make(chan Result, len(cfg.Drones))
	for rank, drone := range cfg.Drones {
		go func(rank int, drone configs.DroneManagerConfig) {
			log.LogInfo("Deploy: starting rank %d on %s", rank, drone.Address)
			err := startDrone(drone, cfg.RemoteDir, rank, exe, conf, log)
			if err != nil {
				log.LogError("Deploy: rank %d on %s failed: %s", rank, drone.Address, err)
			}
			resChan <- Result{Rank: rank, Address: drone.Address, Err: err}
		}(rank, drone)
	}

	results := make([]Result, len(cfg.Drones))
	for i := range results {
		results[i] = Result{Rank: i, Address: cfg.Drones[i].Address, Err: fmt.Errorf("deploy: timed out")}
	}
	deadline := time.After(timeout)
	for count := len(cfg.Drones); count > 0; count-- {
		select {
		case res := <-resChan:
			results[res.Rank] = res
		case <-deadline:
			log.LogError("Deploy: %d drones timed out", count)
			return results, fmt.Errorf("deploy: %d of %d drones timed out", count, len(cfg.Drones))
		}
	}
	for _, res := range results {
		if res.Err != nil {
			return results, fmt.Errorf("deploy: rank %d on %s: %w", res.Rank, res.Address, res.Err)
		}
	}
	log.LogInfo("Deploy: all %d ranks started", len(results))
	return results, nil
}

func startDrone(drone configs.DroneManagerConfig, dir string, rank int, exe, conf []byte, log *hlog.Logger) error {
	sshConfig := &ssh.ClientConfig{
		User:            drone.Username,
		Auth:            []ssh.AuthMethod{ssh.Password(drone.Password)},
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         15 * time.Second,
	}
	client, err := ssh.Dial("tcp", sshAddr(drone), sshConfig)
	if err != nil {
		return fmt.Errorf("ssh: %w", err)
	}
	defer client.Close()

	if err := remoteComm(client, prepareCommand(dir), nil); err != nil {
		return fmt.Errorf("create %s: %w", dir, err)
	}
	binPath := path.Join(dir, remoteBinary)
	if err := remoteComm(client, copyCommand(binPath, "0755"), bytes.NewReader(exe)); err != nil {
		return fmt.Errorf("copy binary: %w", err)
	}
	if err := remoteComm(client, copyCommand(path.Join(dir, remoteConfig), "0644"), bytes.NewReader(conf)); err != nil {
		return fmt.Errorf("copy config: %w", err)
	}
	log.LogDebug("Deploy: copied %d bytes to %s", len(exe), drone.Address)
	return remoteComm(client, startCommand(dir, rank), nil)
}

// runs one command in its own session, feeding it stdin when given
func remoteComm(client *ssh.Client, command string, stdin io.Reader) error {
	session, err := client.NewSession()
	if err != nil {
		return err
	}
	defer session.Close()
	session.Stdin = stdin

	var stderr bytes.Buffer
	session.Stderr = &stderr
	if err := session.Run(command); err != nil {
		return fmt.Errorf("%s: %w: %s", command, err, strings.TrimSpace(stderr.String()))
	}
	return nil
}

func sshAddr(d configs.DroneManagerConfig) string {
	port := d.Port
	if port == "" {
		port = "22"
	}
	return net.JoinHostPort(d.Address, port)
}

// quote wraps s for a POSIX shell
func quote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

func prepareCommand(dir string) string {
	return "pkill -f " + quote(path.Join(dir, remoteBinary)) + "; rm -rf " + quote(dir) + " && mkdir -p " + quote(dir)
}

func copyCommand(file, mode string) string {
	return "cat > " + quote(file) + " && chmod " + mode + " " + quote(file)
}

func startCommand(dir string, rank int) string {
	r := strconv.Itoa(rank)
	return "cd " + quote(dir) + " && nohup ./" + remoteBinary + " " + strings.Join(rankArgs(remoteConfig, rank), " ") +
		" > rank-" + r + ".log 2>&1 < /dev/null &"
}

func rankArgs(config string, rank int) []string {
	return []string{"-config", config, "-rank", strconv.Itoa(rank)}
}

// StartLocal starts size ranks of binary on this machine, all reading
// config. Output of rank r goes to logDir/rank-r.log.
func StartLocal(binary, config string, size int, logDir string, log *hlog.Logger) ([]*exec.Cmd, error) {
	cmds := make([]*exec.Cmd, 0, size)
	for rank := 0; rank < size; rank++ {
		out, err := os.Create(path.Join(logDir, "rank-"+strconv.Itoa(rank)+".log"))
		if err != nil {
			killAll(cmds)
			return nil, err
		}
		cmd := exec.Command(binary, rankArgs(config, rank)...)
		cmd.Stdout = out
		cmd.Stderr = out
		if err := cmd.Start(); err != nil {
			out.Close()
			killAll(cmds)
			return nil, fmt.Errorf("deploy: start rank %d: %w", rank, err)
		}
		log.LogInfo("Deploy: rank %d running as pid %d", rank, cmd.Process.Pid)
		cmds = append(cmds, cmd)
	}
	return cmds, nil
}

// Wait waits for every local rank and returns the first failure.
func Wait(cmds []*exec.Cmd) error {
	var first error
	for rank, cmd := range cmds {
		if err := cmd.Wait(); err != nil && first == nil {
			first = fmt.Errorf("deploy: rank %d: %w", rank, err)
		}
	}
	return first
}

func killAll(cmds []*exec.Cmd) {
	for _, cmd := range cmds {
		cmd.Process.Kill()
		cmd.Wait()
	}
}
