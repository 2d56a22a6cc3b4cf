package backup

import (
	"fmt"
	"io"
	"log"
	"os"
	"path"
	"time"

	"github.com/pkg/sftp"
	xssh "golang.org/x/crypto/ssh"

	"github.com/vpastila/mineserv/internal/config"
	sshutil "github.com/vpastila/mineserv/internal/ssh"
)

// SFTPDestination stores archives on a remote host over SFTP.
type SFTPDestination struct {
	cfg        config.SFTPBackupConfig
	sshClient  *xssh.Client
	sftpClient *sftp.Client
}

// NewSFTPDestination connects to the configured host and ensures the remote
// base directory exists.
func NewSFTPDestination(cfg config.SFTPBackupConfig) (*SFTPDestination, error) {
	d := &SFTPDestination{cfg: cfg}
	if err := d.connect(); err != nil {
		return nil, err
	}
	return d, nil
}

func (d *SFTPDestination) connect() error {
	hostKeyCallback, err := sshutil.NewHostKeyCallback(d.cfg.KnownHosts, true)
	if err != nil {
		return fmt.Errorf("failed to configure host key verification: %w", err)
	}

	sshConfig := &xssh.ClientConfig{
		User:            d.cfg.User,
		HostKeyCallback: hostKeyCallback,
		Timeout:         30 * time.Second,
	}

	switch {
	case d.cfg.KeyFile != "":
		keyData, err := os.ReadFile(d.cfg.KeyFile)
		if err != nil {
			return fmt.Errorf("failed to read SSH key: %w", err)
		}
		signer, err := xssh.ParsePrivateKey(keyData)
		if err != nil {
			return fmt.Errorf("failed to parse SSH key: %w", err)
		}
		sshConfig.Auth = []xssh.AuthMethod{xssh.PublicKeys(signer)}
	case d.cfg.Password != "":
		sshConfig.Auth = []xssh.AuthMethod{xssh.Password(d.cfg.Password)}
	default:
		return fmt.Errorf("sftp destination needs a key file or password")
	}

	port := d.cfg.Port
	if port == 0 {
		port = 22
	}
	addr := fmt.Sprintf("%s:%d", d.cfg.Host, port)

	sshClient, err := xssh.Dial("tcp", addr, sshConfig)
	if err != nil {
		return fmt.Errorf("failed to connect to %s: %w", addr, err)
	}
	d.sshClient = sshClient

	sftpClient, err := sftp.NewClient(sshClient,
		sftp.MaxPacketUnchecked(131072),
		sftp.UseConcurrentWrites(true),
	)
	if err != nil {
		sshClient.Close()
		return fmt.Errorf("failed to create SFTP client: %w", err)
	}
	d.sftpClient = sftpClient

	if err := d.sftpClient.MkdirAll(d.cfg.Path); err != nil {
		d.Close()
		return fmt.Errorf("failed to create remote directory: %w", err)
	}

	log.Printf("[Backup] Using SFTP destination %s:%s", d.cfg.Host, d.cfg.Path)
	return nil
}

// Close shuts down the SFTP and SSH connections.
func (d *SFTPDestination) Close() error {
	if d.sftpClient != nil {
		d.sftpClient.Close()
	}
	if d.sshClient != nil {
		d.sshClient.Close()
	}
	return nil
}

// Upload writes an archive to the remote directory.
func (d *SFTPDestination) Upload(filename string, reader io.Reader, sizeBytes int64) error {
	destPath := path.Join(d.cfg.Path, filename)

	file, err := d.sftpClient.Create(destPath)
	if err != nil {
		return fmt.Errorf("failed to create remote file: %w", err)
	}
	defer file.Close()

	written, err := io.Copy(file, reader)
	if err != nil {
		d.sftpClient.Remove(destPath)
		return fmt.Errorf("failed to write remote file: %w", err)
	}
	if written != sizeBytes {
		d.sftpClient.Remove(destPath)
		return fmt.Errorf("size mismatch: expected %d bytes, wrote %d", sizeBytes, written)
	}

	log.Printf("[Backup] Uploaded %s to %s", filename, destPath)
	return nil
}

// Download streams an archive from the remote directory.
func (d *SFTPDestination) Download(filename string, writer io.Writer) error {
	file, err := d.sftpClient.Open(path.Join(d.cfg.Path, filename))
	if err != nil {
		return fmt.Errorf("failed to open remote file: %w", err)
	}
	defer file.Close()

	if _, err := io.Copy(writer, file); err != nil {
		return fmt.Errorf("failed to read remote file: %w", err)
	}
	return nil
}

// Delete removes an archive from the remote directory.
func (d *SFTPDestination) Delete(filename string) error {
	if err := d.sftpClient.Remove(path.Join(d.cfg.Path, filename)); err != nil {
		return fmt.Errorf("failed to delete remote file: %w", err)
	}
	return nil
}

// List returns the archives in the remote directory.
func (d *SFTPDestination) List() ([]StoredFile, error) {
	entries, err := d.sftpClient.ReadDir(d.cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to read remote directory: %w", err)
	}

	files := make([]StoredFile, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		files = append(files, StoredFile{
			Filename:  entry.Name(),
			SizeBytes: entry.Size(),
			CreatedAt: entry.ModTime().Unix(),
		})
	}
	return files, nil
}

// Type returns the destination type identifier.
func (d *SFTPDestination) Type() string {
	return "sftp"
}
