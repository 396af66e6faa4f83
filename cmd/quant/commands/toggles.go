package commands

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

// togglesCmd represents the toggles command
var togglesCmd = &cobra.Command{
	Use:   "toggles",
	Short: "기능 토글 상태 조회",
	Long: `레이어드 전략 설정(base → profile → instrument → env)을 로드하여
T01~T27 토글의 원본 값과 부모 의존성 반영 후 실효 값을 보여줍니다.

Subcommands:
  list      - 토글 목록 (raw / effective)
  validate  - 부모가 꺼진 자식 토글 등 설정 경고 (경고가 있으면 exit 1)

Example:
  go run ./cmd/quant toggles list --profile shadow
  go run ./cmd/quant toggles validate --instrument NQ`,
}

var togglesListCmd = &cobra.Command{
	Use:   "list",
	Short: "토글 목록",
	RunE:  runTogglesList,
}

var togglesValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "토글 의존성 검증",
	RunE:  runTogglesValidate,
}

var togglesJSON bool

func init() {
	rootCmd.AddCommand(togglesCmd)
	togglesCmd.AddCommand(togglesListCmd, togglesValidateCmd)

	togglesListCmd.Flags().BoolVar(&togglesJSON, "json", false, "JSON 출력")
}

func runTogglesList(cmd *cobra.Command, args []string) error {
	rt, err := loadRuntime(nil)
	if err != nil {
		return err
	}
	toggles := rt.provider.Toggles()

	if togglesJSON {
		return printJSON(toggles)
	}

	strat := rt.provider.Config()
	PrintHeader(fmt.Sprintf("Toggles (%s / %s)", strat.System.Instrument, strat.System.Profile))
	PrintKeyValue("Config hash", shortHash(rt.provider.Hash()), 14)
	PrintKeyValue("Live mode", fmt.Sprintf("%t", rt.provider.LiveMode()), 14)
	fmt.Println()

	widths := []int{5, 36, 5, 9, 12}
	PrintTableHeader([]string{"ID", "Key", "Raw", "Effective", "Parents"}, widths)
	for _, t := range toggles {
		effective := onOff(t.Enabled)
		if t.Raw && !t.Enabled {
			effective = "off*"
		}
		if t.Safety {
			effective += " 🔒"
		}
		PrintTableRow([]string{
			t.ID,
			t.Key,
			onOff(t.Raw),
			effective,
			strings.Join(t.Parents, ","),
		}, widths)
	}
	fmt.Println()
	PrintInfo("off* = enabled in config but disabled by a parent toggle")
	return nil
}

func runTogglesValidate(cmd *cobra.Command, args []string) error {
	rt, err := loadRuntime(nil)
	if err != nil {
		return err
	}

	issues := rt.provider.ValidateToggles()
	if len(issues) == 0 {
		PrintSuccess("All toggles are consistent")
		return nil
	}

	for _, issue := range issues {
		PrintWarning(issue.String())
	}
	return fmt.Errorf("%d toggle issue(s)", len(issues))
}

func onOff(v bool) string {
	if v {
		return "on"
	}
	return "off"
}
