package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestNewRotatingFileWriter(t *testing.T) {
	tmpDir := t.TempDir()
	logFile := filepath.Join(tmpDir, "test.log")

	writer, err := NewRotatingFileWriter(logFile, 1024, 3)
	if err != nil {
		t.Fatalf("NewRotatingFileWriter failed: %v", err)
	}
	defer func() { _ = writer.Close() }()

	if writer.filePath != logFile {
		t.Errorf("FilePath = %q, want %q", writer.filePath, logFile)
	}
	if writer.maxSize != 1024 {
		t.Errorf("MaxSize = %d, want 1024", writer.maxSize)
	}
	if writer.maxBackups != 3 {
		t.Errorf("MaxBackups = %d, want 3", writer.maxBackups)
	}

	if _, err := NewRotatingFileWriter(logFile, 0, 3); err == nil {
		t.Error("Expected error for non-positive max size")
	}
}

func TestRotatingFileWriter_AppendsToExistingFile(t *testing.T) {
	logFile := filepath.Join(t.TempDir(), "test.log")
	if err := os.WriteFile(logFile, []byte("previous\n"), 0600); err != nil {
		t.Fatal(err)
	}

	writer, err := NewRotatingFileWriter(logFile, 1024, 3)
	if err != nil {
		t.Fatalf("NewRotatingFileWriter failed: %v", err)
	}
	if writer.size != int64(len("previous\n")) {
		t.Errorf("size = %d, want existing file size", writer.size)
	}
	if _, err := writer.Write([]byte("next\n")); err != nil {
		t.Fatal(err)
	}
	_ = writer.Close()

	content, _ := os.ReadFile(logFile)
	if string(content) != "previous\nnext\n" {
		t.Errorf("File content = %q", string(content))
	}

	if _, err := writer.Write([]byte("late")); err == nil {
		t.Error("Expected write after close to fail")
	}
}

func TestRotatingFileWriter_Rotation(t *testing.T) {
	tmpDir := t.TempDir()
	logFile := filepath.Join(tmpDir, "test.log")

	writer, err := NewRotatingFileWriter(logFile, 50, 3)
	if err != nil {
		t.Fatalf("NewRotatingFileWriter failed: %v", err)
	}
	defer func() { _ = writer.Close() }()

	firstMsg := strings.Repeat("A", 30) + "\n"
	secondMsg := strings.Repeat("B", 30) + "\n"

	if _, err := writer.Write([]byte(firstMsg)); err != nil {
		t.Fatalf("First write failed: %v", err)
	}
	if _, err := writer.Write([]byte(secondMsg)); err != nil {
		t.Fatalf("Second write failed: %v", err)
	}

	content, err := os.ReadFile(logFile)
	if err != nil {
		t.Fatalf("Failed to read log file: %v", err)
	}
	if string(content) != secondMsg {
		t.Errorf("Current log content = %q, want %q", string(content), secondMsg)
	}

	backupContent, err := os.ReadFile(filepath.Join(tmpDir, "test.1.log"))
	if err != nil {
		t.Fatalf("Backup file was not created: %v", err)
	}
	if string(backupContent) != firstMsg {
		t.Errorf("Backup content = %q, want %q", string(backupContent), firstMsg)
	}
}

func TestRotatingFileWriter_MaxBackups(t *testing.T) {
	tmpDir := t.TempDir()
	logFile := filepath.Join(tmpDir, "test.log")

	writer, err := NewRotatingFileWriter(logFile, 20, 2)
	if err != nil {
		t.Fatalf("NewRotatingFileWriter failed: %v", err)
	}
	defer func() { _ = writer.Close() }()

	// Every message exceeds the limit on its own, so each write after the
	// first rotates.
	for i := 0; i < 5; i++ {
		msg := fmt.Sprintf("Message %d: %s\n", i, strings.Repeat("X", 15))
		if _, err := writer.Write([]byte(msg)); err != nil {
			t.Fatalf("Write %d failed: %v", i, err)
		}
	}

	files, err := os.ReadDir(tmpDir)
	if err != nil {
		t.Fatalf("Failed to read directory: %v", err)
	}
	if len(files) != 3 {
		t.Errorf("Found %d files, expected current file plus 2 backups", len(files))
	}

	newest, _ := os.ReadFile(filepath.Join(tmpDir, "test.1.log"))
	if !strings.HasPrefix(string(newest), "Message 3") {
		t.Errorf("newest backup = %q, want Message 3", string(newest))
	}
	oldest, _ := os.ReadFile(filepath.Join(tmpDir, "test.2.log"))
	if !strings.HasPrefix(string(oldest), "Message 2") {
		t.Errorf("oldest backup = %q, want Message 2", string(oldest))
	}
}

func TestRotatingFileWriter_NoBackups(t *testing.T) {
	tmpDir := t.TempDir()
	logFile := filepath.Join(tmpDir, "test.log")

	writer, err := NewRotatingFileWriter(logFile, 10, 0)
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = writer.Close() }()

	_, _ = writer.Write([]byte("first line\n"))
	_, _ = writer.Write([]byte("second line\n"))

	files, _ := os.ReadDir(tmpDir)
	if len(files) != 1 {
		t.Errorf("Expected only the current file, found %d", len(files))
	}
	content, _ := os.ReadFile(logFile)
	if string(content) != "second line\n" {
		t.Errorf("content = %q", string(content))
	}
}

func TestRotatingFileWriter_BackupName(t *testing.T) {
	tmpDir := t.TempDir()
	logFile := filepath.Join(tmpDir, "app.log")

	writer, err := NewRotatingFileWriter(logFile, 1024, 3)
	if err != nil {
		t.Fatalf("NewRotatingFileWriter failed: %v", err)
	}
	defer func() { _ = writer.Close() }()

	if got, want := writer.backupName(1), filepath.Join(tmpDir, "app.1.log"); got != want {
		t.Errorf("backupName(1) = %q, want %q", got, want)
	}
}
