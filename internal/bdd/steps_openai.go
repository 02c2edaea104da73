// Package bdd holds the HTTP feature tests and the steps that script the
// mock generative service.
package bdd

import (
	"fmt"
	"strings"

	"github.com/cucumber/godog"
	"github.com/memoryweaver/memory-weaver/internal/testutil/cucumber"
	"github.com/memoryweaver/memory-weaver/internal/testutil/mockopenai"
)

const mockOpenAIKey = "mockOpenAI"

var endpointNames = map[string]string{
	"chat":   mockopenai.EndpointChat,
	"image":  mockopenai.EndpointImage,
	"speech": mockopenai.EndpointSpeech,
}

func init() {
	cucumber.StepModules = append(cucumber.StepModules, func(ctx *godog.ScenarioContext, s *cucumber.TestScenario) {
		o := &openAISteps{s: s}
		ctx.Step(`^the story service returns:$`, o.storyReturns)
		ctx.Step(`^the title service returns "([^"]*)"$`, o.titleReturns)
		ctx.Step(`^the image service returns "([^"]*)"$`, o.imageReturns)
		ctx.Step(`^the OpenAI (chat|image|speech) endpoint fails with status (\d+)$`, o.endpointFails)
		ctx.Step(`^the OpenAI (chat|image|speech) endpoint should have been called (\d+) times?$`, o.endpointCalled)
		ctx.Step(`^the story prompt should contain "([^"]*)"$`, o.storyPromptContains)
		ctx.Step(`^the response body should be the narration audio$`, o.bodyIsNarration)
	})
}

type openAISteps struct {
	s *cucumber.TestScenario
}

func (o *openAISteps) mock() (*mockopenai.Server, error) {
	m, ok := o.s.Suite.Extra[mockOpenAIKey].(*mockopenai.Server)
	if !ok {
		return nil, fmt.Errorf("mock OpenAI server not configured")
	}
	return m, nil
}

func (o *openAISteps) storyReturns(doc *godog.DocString) error {
	m, err := o.mock()
	if err != nil {
		return err
	}
	m.SetStory(doc.Content)
	return nil
}

func (o *openAISteps) titleReturns(title string) error {
	m, err := o.mock()
	if err != nil {
		return err
	}
	m.SetTitle(title)
	return nil
}

func (o *openAISteps) imageReturns(url string) error {
	m, err := o.mock()
	if err != nil {
		return err
	}
	m.SetImageURL(url)
	return nil
}

func (o *openAISteps) endpointFails(endpoint string, status int) error {
	m, err := o.mock()
	if err != nil {
		return err
	}
	m.Fail(endpointNames[endpoint], status)
	return nil
}

func (o *openAISteps) endpointCalled(endpoint string, times int) error {
	m, err := o.mock()
	if err != nil {
		return err
	}
	if got := m.Calls(endpointNames[endpoint]); got != times {
		return fmt.Errorf("expected %d %s calls, got %d", times, endpoint, got)
	}
	return nil
}

func (o *openAISteps) storyPromptContains(text string) error {
	m, err := o.mock()
	if err != nil {
		return err
	}
	expanded, err := o.s.Expand(text)
	if err != nil {
		return err
	}
	for _, call := range m.ChatCalls() {
		if call.System != mockopenai.TitleSystemPrompt && strings.Contains(call.User, expanded) {
			return nil
		}
	}
	return fmt.Errorf("no story prompt contains %q", expanded)
}

func (o *openAISteps) bodyIsNarration() error {
	m, err := o.mock()
	if err != nil {
		return err
	}
	if got, want := string(o.s.Session().RespBytes), string(m.Audio()); got != want {
		return fmt.Errorf("expected narration audio %q, got %q", want, got)
	}
	return nil
}
