package storage

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/ocharnyshevich/voxelkeep/internal/world/region"
)

// DiagnosticSeverity classifies a single validation finding.
type DiagnosticSeverity int

const (
	SeverityInfo DiagnosticSeverity = iota
	SeverityWarning
	SeverityCorrupt
)

// Diagnostic is one per-file finding surfaced by Validate.
type Diagnostic struct {
	Path     string
	Severity DiagnosticSeverity
	Message  string
}

// Validate performs offline structural validation over a world
// directory: confirms world.dat exists and parses, confirms player.dat
// (if present) parses, and checks every .vkr file under regions/, fully
// decoding each populated slot (header, palette and packed words).
func Validate(worldDir string) []Diagnostic {
	var diags []Diagnostic

	worldDatPath := filepath.Join(worldDir, "world.dat")
	if _, err := LoadWorldMetadata(worldDatPath); err != nil {
		diags = append(diags, Diagnostic{Path: worldDatPath, Severity: SeverityCorrupt, Message: err.Error()})
	}

	playerDatPath := filepath.Join(worldDir, "player.dat")
	if _, _, err := LoadPlayerState(playerDatPath); err != nil {
		diags = append(diags, Diagnostic{Path: playerDatPath, Severity: SeverityCorrupt, Message: err.Error()})
	}

	regionsDir := filepath.Join(worldDir, "regions")
	entries, err := os.ReadDir(regionsDir)
	if err != nil {
		if !os.IsNotExist(err) {
			diags = append(diags, Diagnostic{Path: regionsDir, Severity: SeverityWarning, Message: err.Error()})
		}
		return diags
	}

	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".vkr") {
			continue
		}
		path := filepath.Join(regionsDir, e.Name())
		diags = append(diags, validateRegionFile(path)...)
	}

	return diags
}

func validateRegionFile(path string) []Diagnostic {
	var diags []Diagnostic

	rf, err := region.Open(path)
	if err != nil {
		return []Diagnostic{{Path: path, Severity: SeverityCorrupt, Message: err.Error()}}
	}
	defer rf.Close()

	for lz := 0; lz < 32; lz++ {
		for lx := 0; lx < 32; lx++ {
			if !rf.Has(lx, lz) {
				continue
			}
			payload, ok, err := rf.Read(lx, lz)
			if err != nil || !ok {
				diags = append(diags, Diagnostic{
					Path: path, Severity: SeverityCorrupt,
					Message: diagnosticMessage("read slot", lx, lz, err),
				})
				continue
			}
			if _, err := region.Decode(payload); err != nil {
				diags = append(diags, Diagnostic{
					Path: path, Severity: SeverityCorrupt,
					Message: diagnosticMessage("decode slot", lx, lz, err),
				})
			}
		}
	}

	return diags
}

func diagnosticMessage(action string, lx, lz int, err error) string {
	msg := action
	if err != nil {
		msg += ": " + err.Error()
	}
	return msg
}

// HasCorruption reports whether any diagnostic is severity Corrupt.
func HasCorruption(diags []Diagnostic) bool {
	for _, d := range diags {
		if d.Severity == SeverityCorrupt {
			return true
		}
	}
	return false
}

// Recover attempts non-destructive recovery of a world directory,
// ranked restore-from-backup first, then per-file partial recovery.
// It never regenerates from seed or resets to defaults automatically.
func Recover(log *slog.Logger, worldDir string, diags []Diagnostic) error {
	if restoreFromBackup(log, worldDir) {
		return nil
	}
	return partialRecovery(log, worldDir, diags)
}

// restoreFromBackup tries the most recent backup that itself validates,
// falling back to up to two older backups.
func restoreFromBackup(log *slog.Logger, worldDir string) bool {
	backups, err := ListBackups(worldDir)
	if err != nil || len(backups) == 0 {
		return false
	}

	tries := backups
	if len(tries) > 3 {
		tries = tries[:3]
	}

	for _, b := range tries {
		if HasCorruption(validateBackup(b.Path)) {
			log.Warn("backup failed validation, trying an older one", "path", b.Path)
			continue
		}
		if err := Restore(b.Path, worldDir); err != nil {
			log.Warn("restore from backup failed", "path", b.Path, "error", err)
			continue
		}
		log.Info("restored world from backup", "path", b.Path)
		return true
	}

	return false
}

func validateBackup(path string) []Diagnostic {
	return Validate(path)
}

// partialRecovery deletes individually corrupted artifacts so the world
// regenerates or recreates them on next load: the corrupted player file
// (in-memory player state survives independently), corrupted chunk
// slots, and a corrupted entities file.
func partialRecovery(log *slog.Logger, worldDir string, diags []Diagnostic) error {
	playerDatPath := filepath.Join(worldDir, "player.dat")
	entitiesDatPath := filepath.Join(worldDir, "entities.dat")

	for _, d := range diags {
		if d.Severity != SeverityCorrupt {
			continue
		}

		switch {
		case d.Path == playerDatPath:
			if err := os.Remove(d.Path); err != nil && !os.IsNotExist(err) {
				return err
			}
			log.Warn("removed corrupted player file", "path", d.Path)

		case d.Path == entitiesDatPath:
			if err := os.Remove(d.Path); err != nil && !os.IsNotExist(err) {
				return err
			}
			log.Warn("removed corrupted entities file", "path", d.Path)

		case strings.HasSuffix(d.Path, ".vkr"):
			if err := dropCorruptedSlots(d.Path); err != nil {
				return err
			}
			log.Warn("dropped corrupted chunk slots so they regenerate", "path", d.Path)
		}
	}

	return nil
}

// dropCorruptedSlots removes every slot in a region file that fails to
// decode, leaving valid slots untouched.
func dropCorruptedSlots(path string) error {
	rf, err := region.Open(path)
	if err != nil {
		return err
	}
	defer rf.Close()

	for lz := 0; lz < 32; lz++ {
		for lx := 0; lx < 32; lx++ {
			if !rf.Has(lx, lz) {
				continue
			}
			payload, ok, err := rf.Read(lx, lz)
			if err != nil || !ok {
				_ = rf.Remove(lx, lz)
				continue
			}
			if _, err := region.Decode(payload); err != nil {
				_ = rf.Remove(lx, lz)
			}
		}
	}

	return nil
}
