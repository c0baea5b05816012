package extract

import (
	"errors"
	"fmt"
	"os"

	"github.com/sqfsx/unsquashfs"
	"github.com/sqfsx/unsquashfs/internal/pipeline"
	"github.com/sqfsx/unsquashfs/internal/progress"
)

// Run executes the full two-pass extraction (spec §4.8: pre-scan then
// main scan) and returns the process exit code per spec §6/§7: 0 clean,
// 1 fatal usage/IO/format error, 2 non-fatal errors occurred.
func (c *Context) Run() int {
	st, err := c.PreScan()
	if err != nil {
		fmt.Fprintln(os.Stderr, "squashfs: prescan failed:", err)
		c.pipe.Shutdown()
		return 1
	}

	if !c.Opts.NoProgress && !c.Opts.Quiet {
		c.prog = progress.New(os.Stderr, st.Total(), false)
		go c.prog.Run()
	}

	fatal := c.MainScan()

	pipeErr := c.pipe.Shutdown()
	if c.prog != nil {
		c.prog.Stop()
	}
	if pipeErr != nil {
		fatal = c.recordError(classifyWriteErr(c.Opts.Dest, pipeErr)) || fatal
	}

	return c.ExitCode(fatal)
}

// classifyWriteErr turns the pipeline's classified WriteError (the
// writer goroutine's chmod/chown/utime/open/decompress failures — see
// internal/pipeline/latch.go) into the same Kind vocabulary the
// traversal side uses, so -strict-errors/-ignore-errors/exit-code
// policy applies to the real cause instead of a blanket I/O error.
func classifyWriteErr(dest string, err error) *squashfs.ExtractError {
	var we *pipeline.WriteError
	if errors.As(err, &we) {
		return squashfs.NewExtractError(mapWriteErrKind(we.Kind), we.Path, we.Err)
	}
	return squashfs.NewExtractError(squashfs.KindIO, dest, err)
}

func mapWriteErrKind(k pipeline.ErrKind) squashfs.Kind {
	switch k {
	case pipeline.ErrKindDecompressFailed:
		return squashfs.KindDecompressFailed
	case pipeline.ErrKindFsCreatePermission:
		return squashfs.KindFsCreatePermission
	case pipeline.ErrKindFsCreateExists:
		return squashfs.KindFsCreateExists
	case pipeline.ErrKindFsCreateOther:
		return squashfs.KindFsCreateOther
	case pipeline.ErrKindXattrFailed:
		return squashfs.KindXattrFailed
	default:
		return squashfs.KindIO
	}
}
