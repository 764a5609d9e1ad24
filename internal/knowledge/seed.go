package knowledge

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Seed indexes the corpus text files under seedDir into the two collections.
// Layout mirrors the data directory the corpus ships in:
//
//	<seedDir>/villages/*.txt      -> villages_knowledge
//	<seedDir>/design_cases/*.txt  -> design_cases
//
// Village files carry "村落名称：" and "所属地区：" header lines, design case
// files a "设计案例：" line; those become document metadata.
func Seed(ctx context.Context, s *Store, seedDir string) error {
	villages, err := loadTextFiles(filepath.Join(seedDir, "villages"))
	if err != nil {
		return err
	}
	var villageDocs []Doc
	for i, f := range villages {
		villageDocs = append(villageDocs, Doc{
			ID:       fmt.Sprintf("village_%03d", i+1),
			Document: f.content,
			Metadata: map[string]string{
				"name":     headerValue(f.content, "村落名称："),
				"province": headerValue(f.content, "所属地区："),
				"source":   f.name,
			},
		})
	}
	if err := s.Add(ctx, CollectionVillages, villageDocs); err != nil {
		return fmt.Errorf("seed villages: %w", err)
	}

	cases, err := loadTextFiles(filepath.Join(seedDir, "design_cases"))
	if err != nil {
		return err
	}
	var caseDocs []Doc
	for i, f := range cases {
		caseDocs = append(caseDocs, Doc{
			ID:       fmt.Sprintf("case_%03d", i+1),
			Document: f.content,
			Metadata: map[string]string{
				"name":   headerValue(f.content, "设计案例："),
				"source": f.name,
			},
		})
	}
	if err := s.Add(ctx, CollectionDesignCases, caseDocs); err != nil {
		return fmt.Errorf("seed design cases: %w", err)
	}

	slog.Info("knowledge base seeded",
		"villages", len(villageDocs), "design_cases", len(caseDocs))
	return nil
}

type seedFile struct {
	name    string
	content string
}

func loadTextFiles(dir string) ([]seedFile, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			slog.Warn("seed directory missing, skipping", "dir", dir)
			return nil, nil
		}
		return nil, fmt.Errorf("read seed directory %s: %w", dir, err)
	}

	var files []seedFile
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".txt") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, e.Name()))
		if err != nil {
			slog.Error("failed to load seed file", "file", e.Name(), "error", err)
			continue
		}
		files = append(files, seedFile{name: e.Name(), content: string(data)})
	}

	sort.Slice(files, func(i, j int) bool { return files[i].name < files[j].name })
	return files, nil
}

func headerValue(content, prefix string) string {
	for _, line := range strings.Split(content, "\n") {
		if strings.HasPrefix(line, prefix) {
			return strings.TrimSpace(strings.TrimPrefix(line, prefix))
		}
	}
	return ""
}
