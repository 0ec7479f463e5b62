package publish

import (
	"context"
	"fmt"
	"io"
	"net"
	"os"
	"path"
	"strings"
	"time"

	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"
)

// SFTPPublisher uploads images over SFTP, one connection per image.
// accessInfo keys: host, user, remote_dir, password or private_key (raw or
// base64 PEM), optional port (default 22) and host_key (authorized_keys line).
type SFTPPublisher struct {
	addr      string
	remoteDir string
	config    *ssh.ClientConfig
}

func NewSFTPPublisher(accessInfo map[string]string) (*SFTPPublisher, error) {
	if err := requireKeys("sftp", accessInfo, "host", "user", "remote_dir"); err != nil {
		return nil, err
	}
	port := accessInfo["port"]
	if port == "" {
		port = "22"
	}

	var auths []ssh.AuthMethod
	switch {
	case accessInfo["private_key"] != "":
		signer, err := ssh.ParsePrivateKey(decodeMaybeBase64(accessInfo["private_key"]))
		if err != nil {
			return nil, fmt.Errorf("parse private key: %w", err)
		}
		auths = append(auths, ssh.PublicKeys(signer))
	case accessInfo["password"] != "":
		auths = append(auths, ssh.Password(accessInfo["password"]))
	default:
		return nil, fmt.Errorf("sftp publisher: no auth method provided; set password or private_key")
	}

	hostKeyCallback := ssh.InsecureIgnoreHostKey()
	if hk := accessInfo["host_key"]; hk != "" {
		pub, _, _, _, err := ssh.ParseAuthorizedKey([]byte(hk))
		if err != nil {
			return nil, fmt.Errorf("parse host key: %w", err)
		}
		hostKeyCallback = ssh.FixedHostKey(pub)
	}

	return &SFTPPublisher{
		addr:      net.JoinHostPort(accessInfo["host"], port),
		remoteDir: accessInfo["remote_dir"],
		config: &ssh.ClientConfig{
			User:            accessInfo["user"],
			Auth:            auths,
			HostKeyCallback: hostKeyCallback,
			Timeout:         10 * time.Second,
		},
	}, nil
}

func (p *SFTPPublisher) Name() string { return "sftp" }

func (p *SFTPPublisher) Publish(ctx context.Context, name string, r io.Reader) error {
	d := net.Dialer{}
	conn, err := d.DialContext(ctx, "tcp", p.addr)
	if err != nil {
		return fmt.Errorf("dial tcp %s: %w", p.addr, err)
	}

	clientConn, chans, reqs, err := ssh.NewClientConn(conn, p.addr, p.config)
	if err != nil {
		conn.Close()
		return fmt.Errorf("ssh handshake with %s: %w", p.addr, err)
	}
	sshClient := ssh.NewClient(clientConn, chans, reqs)
	defer sshClient.Close()

	client, err := sftp.NewClient(sshClient)
	if err != nil {
		return fmt.Errorf("create sftp client: %w", err)
	}
	defer client.Close()

	remotePath := path.Join(p.remoteDir, name)
	if err := mkdirAll(client, path.Dir(remotePath)); err != nil {
		return fmt.Errorf("ensure remote dir for %s: %w", remotePath, err)
	}

	f, err := client.Create(remotePath)
	if err != nil {
		return fmt.Errorf("create remote file %s: %w", remotePath, err)
	}
	defer f.Close()

	if _, err := io.Copy(f, r); err != nil {
		return fmt.Errorf("copy to remote file %s: %w", remotePath, err)
	}
	return nil
}

// mkdirAll creates each missing segment of dir on the server.
func mkdirAll(client *sftp.Client, dir string) error {
	if dir == "" || dir == "." || dir == "/" {
		return nil
	}
	cur := ""
	if strings.HasPrefix(dir, "/") {
		cur = "/"
	}
	for _, part := range strings.Split(dir, "/") {
		if part == "" {
			continue
		}
		cur = path.Join(cur, part)
		if _, err := client.Stat(cur); err != nil {
			if !os.IsNotExist(err) {
				return fmt.Errorf("stat %s: %w", cur, err)
			}
			if err := client.Mkdir(cur); err != nil {
				return fmt.Errorf("mkdir %s: %w", cur, err)
			}
		}
	}
	return nil
}
