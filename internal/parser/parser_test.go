package parser

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_SingleScenario(t *testing.T) {
	content := []byte(`Feature: Login
  Scenario: User logs in
    Given a user
    When they log in
    Then they see the dashboard
`)
	doc, errors := Parse("login.feature", content)
	require.Empty(t, errors)
	assert.Equal(t, "login.feature", doc.URI)
	assert.Equal(t, "Login", doc.Feature.Name)
	assert.Equal(t, "Feature", doc.Feature.Keyword)

	scenarios := doc.Feature.Scenarios()
	require.Len(t, scenarios, 1)
	sc := scenarios[0]
	assert.Equal(t, "User logs in", sc.Name)
	assert.Equal(t, "Scenario", sc.Keyword)
	assert.Equal(t, 2, sc.Location.Line)
	assert.Equal(t, 3, sc.Location.Column)

	require.Len(t, sc.Steps, 3)
	assert.Equal(t, "Given ", sc.Steps[0].Keyword)
	assert.Equal(t, "a user", sc.Steps[0].Text)
	assert.Equal(t, 3, sc.Steps[0].Location.Line)
	assert.Equal(t, "When ", sc.Steps[1].Keyword)
	assert.Equal(t, 5, sc.Steps[2].Location.Line)
}

func TestParse_MultipleScenarios(t *testing.T) {
	content := []byte(`Feature: Login
  Scenario: User logs in
    Given a user

  Scenario: User fails login
    Given a user
`)
	doc, errors := Parse("login.feature", content)
	require.Empty(t, errors)
	scenarios := doc.Feature.Scenarios()
	require.Len(t, scenarios, 2)
	assert.Equal(t, "User logs in", scenarios[0].Name)
	assert.Equal(t, "User fails login", scenarios[1].Name)
	assert.Equal(t, 5, scenarios[1].Location.Line)
}

func TestParse_Background(t *testing.T) {
	content := []byte(`Feature: Login
  Background:
    Given a registered user

  Scenario: User logs in
    When they log in
    Then they see the dashboard
`)
	doc, errors := Parse("login.feature", content)
	require.Empty(t, errors)

	bg := doc.Feature.Background()
	require.NotNil(t, bg)
	assert.Equal(t, "Background", bg.Keyword)
	require.Len(t, bg.Steps, 1)
	assert.Equal(t, 3, bg.Steps[0].Location.Line)

	require.Len(t, doc.Feature.Children, 2)
	assert.Nil(t, doc.Feature.Children[1].Background)
	assert.Equal(t, "User logs in", doc.Feature.Children[1].Scenario.Name)
}

func TestParse_NoBackground(t *testing.T) {
	content := []byte(`Feature: Login
  Scenario: User logs in
    Given a user
`)
	doc, errors := Parse("login.feature", content)
	require.Empty(t, errors)
	assert.Nil(t, doc.Feature.Background())
}

func TestParse_ScenarioOutline(t *testing.T) {
	content := []byte(`Feature: Arithmetic
  Scenario Outline: Adding <a> and <b>
    Given I have <a>
    When I add <b>
    Then I get <sum>

    Examples: small
      | a | b | sum |
      | 1 | 2 | 3   |
      | 2 | 2 | 4   |

    @big
    Examples: large
      | a   | b   | sum  |
      | 100 | 200 | 300  |
`)
	doc, errors := Parse("math.feature", content)
	require.Empty(t, errors)

	scenarios := doc.Feature.Scenarios()
	require.Len(t, scenarios, 1)
	outline := scenarios[0]
	assert.True(t, outline.IsOutline())
	assert.Equal(t, "Scenario Outline", outline.Keyword)
	assert.Equal(t, "Adding <a> and <b>", outline.Name)
	require.Len(t, outline.Examples, 2)

	small := outline.Examples[0]
	assert.Equal(t, "small", small.Name)
	require.NotNil(t, small.Header)
	assert.Equal(t, []string{"a", "b", "sum"}, small.Header.Cells)
	require.Len(t, small.Body, 2)
	assert.Equal(t, []string{"1", "2", "3"}, small.Body[0].Cells)
	assert.Equal(t, 9, small.Body[0].Location.Line)

	large := outline.Examples[1]
	require.Len(t, large.Tags, 1)
	assert.Equal(t, "@big", large.Tags[0].Name)

	assert.Equal(t, []int{9, 10, 15}, outline.RowLines())
}

func TestParse_ScenarioIsNotOutline(t *testing.T) {
	content := []byte(`Feature: Login
  Scenario: Plain
    Given a user
`)
	doc, errors := Parse("login.feature", content)
	require.Empty(t, errors)
	assert.False(t, doc.Feature.Scenarios()[0].IsOutline())
	assert.Empty(t, doc.Feature.Scenarios()[0].RowLines())
}

func TestParse_DataTableArgument(t *testing.T) {
	content := []byte(`Feature: Users
  Scenario: Create users
    Given the users:
      | name  | role  |
      | alice | admin |
      | bob   | a\|b  |
    Then there are 2 users
`)
	doc, errors := Parse("users.feature", content)
	require.Empty(t, errors)

	step := doc.Feature.Scenarios()[0].Steps[0]
	require.NotNil(t, step.Argument)
	require.NotNil(t, step.Argument.DataTable)
	rows := step.Argument.DataTable.Rows
	require.Len(t, rows, 3)
	assert.Equal(t, []string{"name", "role"}, rows[0].Cells)
	assert.Equal(t, []string{"bob", "a|b"}, rows[2].Cells)
	assert.Equal(t, 7, doc.Feature.Scenarios()[0].Steps[1].Location.Line)
}

func TestParse_DocStringArgument(t *testing.T) {
	content := []byte(`Feature: Parse
  Scenario: Doc string
    Given the file contains:
      """json
      {
        "a": 1
      }
      """
    Then it works
`)
	doc, errors := Parse("parse.feature", content)
	require.Empty(t, errors)

	steps := doc.Feature.Scenarios()[0].Steps
	require.Len(t, steps, 2)
	require.NotNil(t, steps[0].Argument)
	ds := steps[0].Argument.DocString
	require.NotNil(t, ds)
	assert.Equal(t, "json", ds.MediaType)
	assert.Equal(t, "{\n  \"a\": 1\n}", ds.Content)
	assert.Equal(t, `"""`, ds.Delimiter)
}

func TestParse_DocStringContentIsOpaque(t *testing.T) {
	content := []byte(`Feature: Parse Scenarios
  Scenario: Already-tagged scenario is skipped
    Given the file login.feature contains:
      """
      Feature: Login
        @ft:1
        Scenario: User logs in
          Given a user
      """
    When the user runs sync
    Then no new scenarios record is created
`)
	doc, errors := Parse("test.feature", content)
	require.Empty(t, errors)
	scenarios := doc.Feature.Scenarios()
	require.Len(t, scenarios, 1)
	assert.Equal(t, "Already-tagged scenario is skipped", scenarios[0].Name)
	assert.Len(t, scenarios[0].Steps, 3)
}

func TestParse_DocStringWithBackticks(t *testing.T) {
	content := []byte("Feature: Test\n  Scenario: Has code block\n    Given content:\n      ```\n      Scenario: Not real\n      @ft:99\n      ```\n    Then it works\n")
	doc, errors := Parse("test.feature", content)
	require.Empty(t, errors)
	scenarios := doc.Feature.Scenarios()
	require.Len(t, scenarios, 1)
	assert.Equal(t, "Has code block", scenarios[0].Name)
	assert.Equal(t, "```", scenarios[0].Steps[0].Argument.DocString.Delimiter)
}

func TestParse_UnterminatedDocString(t *testing.T) {
	content := []byte(`Feature: Broken
  Scenario: Doc string
    Given the file contains:
      """
      never closed
`)
	_, errors := Parse("broken.feature", content)
	require.Len(t, errors, 1)
	assert.Equal(t, "unterminated doc string", errors[0].Message)
	assert.Equal(t, 4, errors[0].Line)
}

func TestParse_Comments(t *testing.T) {
	content := []byte(`# This is a comment
Feature: Login
  # Another comment
  Scenario: User logs in
    # step comment
    Given a user
`)
	doc, errors := Parse("login.feature", content)
	require.Empty(t, errors)
	assert.Equal(t, "Login", doc.Feature.Name)
	require.Len(t, doc.Feature.Scenarios(), 1)
	assert.Len(t, doc.Feature.Scenarios()[0].Steps, 1)
}

func TestParse_FeatureDescription(t *testing.T) {
	content := []byte(`Feature: Login
  As a user
  I want to log in

  Scenario: User logs in
    Given a user
`)
	doc, errors := Parse("login.feature", content)
	require.Empty(t, errors)
	assert.Equal(t, "As a user\nI want to log in", doc.Feature.Description)
}

func TestParse_MultipleTags(t *testing.T) {
	content := []byte(`@billing
Feature: Login
  @smoke @ft:5 @regression # trailing comment
  Scenario: User logs in
    Given a user
`)
	doc, errors := Parse("login.feature", content)
	require.Empty(t, errors)
	require.Len(t, doc.Feature.Tags, 1)
	assert.Equal(t, "@billing", doc.Feature.Tags[0].Name)

	tags := doc.Feature.Scenarios()[0].Tags
	require.Len(t, tags, 3)
	assert.Equal(t, "@smoke", tags[0].Name)
	assert.Equal(t, "@ft:5", tags[1].Name)
	assert.Equal(t, "@regression", tags[2].Name)
	assert.Equal(t, 3, tags[0].Location.Line)
}

func TestParse_TagsBeforeMultipleScenarios(t *testing.T) {
	content := []byte(`Feature: Login
  @tag1
  Scenario: First
    Given a

  @tag2
  Scenario: Second
    Given b
`)
	doc, errors := Parse("login.feature", content)
	require.Empty(t, errors)
	scenarios := doc.Feature.Scenarios()
	require.Len(t, scenarios, 2)
	require.Len(t, scenarios[0].Tags, 1)
	assert.Equal(t, "@tag1", scenarios[0].Tags[0].Name)
	require.Len(t, scenarios[1].Tags, 1)
	assert.Equal(t, "@tag2", scenarios[1].Tags[0].Name)
}

func TestParse_EmptyFile(t *testing.T) {
	doc, errors := Parse("empty.feature", []byte(""))
	require.Empty(t, errors)
	assert.Nil(t, doc.Feature)
}

func TestParse_NoFeatureLine(t *testing.T) {
	content := []byte(`  Scenario: User logs in
    Given a user
`)
	doc, errors := Parse("login.feature", content)
	require.NotEmpty(t, errors)
	assert.Equal(t, 1, errors[0].Line)
	assert.Nil(t, doc.Feature)
}

func TestParse_RuleError(t *testing.T) {
	content := []byte(`Feature: Login
  Rule: Business rule
    Scenario: Test
`)
	_, errors := Parse("login.feature", content)
	require.NotEmpty(t, errors)
	assert.Equal(t, "Rule is not supported", errors[0].Message)
}

func TestParse_ExamplesOutsideOutline(t *testing.T) {
	content := []byte(`Feature: Login
  Examples: Table
    | a |
`)
	_, errors := Parse("login.feature", content)
	require.Len(t, errors, 1)
	assert.Equal(t, "Examples is not supported outside a Scenario Outline", errors[0].Message)
}

func TestParse_StepOutsideScenario(t *testing.T) {
	content := []byte(`Feature: Login
  Given a stray step
`)
	_, errors := Parse("login.feature", content)
	require.Len(t, errors, 1)
	assert.Equal(t, 2, errors[0].Line)
}

func TestParse_BackgroundAfterScenario(t *testing.T) {
	content := []byte(`Feature: Login
  Scenario: First
    Given a
  Background:
    Given b
`)
	_, errors := Parse("login.feature", content)
	require.Len(t, errors, 1)
	assert.Equal(t, "Background must be the first element of a Feature", errors[0].Message)
}

func TestParse_InconsistentTable(t *testing.T) {
	content := []byte(`Feature: Users
  Scenario: Create users
    Given the users:
      | name | role |
      | alice |
`)
	_, errors := Parse("users.feature", content)
	require.Len(t, errors, 1)
	assert.Equal(t, 5, errors[0].Line)
}

func TestParseError_Error(t *testing.T) {
	err := ParseError{Line: 3, Message: "unexpected line"}
	assert.Equal(t, "line 3: unexpected line", err.Error())
}
